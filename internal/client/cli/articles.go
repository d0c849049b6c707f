package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/vulnblog/internal/client/controllers"
	"github.com/dmitrijs2005/vulnblog/internal/client/models"
)

const dateLayout = "02/01/2006 15:04"

// getSimpleText, getMultiline, getConfirm and getPassword are indirections
// used to facilitate testing.
var (
	getSimpleText = GetSimpleText
	getMultiline  = GetMultiline
	getConfirm    = GetConfirm
	getPassword   = GetPassword
)

// Home prints the published articles once.
func (a *App) Home(ctx context.Context) error {
	home := controllers.NewHome(a.articles, a.changes, a.logger)
	home.Refresh(ctx)
	a.printList(home.Articles(), home.State())
	return nil
}

const msgNotLive = "Mises à jour en direct indisponibles, nouvelle tentative en arrière-plan."

// Watch prints the published articles and reprints them on every remote
// change until the user presses Enter.
func (a *App) Watch(ctx context.Context) error {
	home := controllers.NewHome(a.articles, a.changes, a.logger)
	err := home.Start(ctx, func() {
		a.printList(home.Articles(), home.State())
	})
	if err != nil {
		a.println(home.State().Err)
		return nil
	}
	defer home.Stop()
	if !home.Live() {
		a.println(msgNotLive)
	}

	_, err = getSimpleText(a.reader, "Vue en direct, Entrée pour quitter", a.out)
	return err
}

// Show prints one article. Edit and delete are only suggested to its author.
func (a *App) Show(ctx context.Context, id string) error {
	c := controllers.NewArticle(a.articles, a.sessions, a.logger)
	if !c.Load(ctx, a.resolveID(id)) {
		a.println(c.State().Err)
		return nil
	}

	art := c.Article()
	var b strings.Builder
	fmt.Fprintf(&b, "%s\npar %s, le %s\n", art.Title, art.AuthorName(), art.CreatedAt.Local().Format(dateLayout))
	if !art.Published {
		fmt.Fprintf(&b, "[%s]\n", controllers.MsgDraft)
	}
	fmt.Fprintf(&b, "\n%s\n", art.Body)
	if c.IsAuthor(ctx) {
		fmt.Fprintf(&b, "\nVous êtes l'auteur : 'edit %s' ou 'delete %s'\n", art.ID, art.ID)
	}
	a.printf("%s", b.String())
	return nil
}

// Edit asks for new values, empty input keeping the current one, and saves
// them after confirmation. Declining restores the loaded values.
func (a *App) Edit(ctx context.Context, id string) error {
	c := controllers.NewArticle(a.articles, a.sessions, a.logger)
	if !c.Load(ctx, a.resolveID(id)) {
		a.println(c.State().Err)
		return nil
	}
	c.Edit()

	f := c.Form()
	title, err := getSimpleText(a.reader, fmt.Sprintf("Titre [%s]", f.Title), a.out)
	if err != nil {
		return err
	}
	if title != "" {
		f.Title = title
	}
	body, err := getMultiline(a.reader, "Contenu (vide pour garder l'actuel)", a.out)
	if err != nil {
		return err
	}
	if body != "" {
		f.Body = body
	}
	published, err := getSimpleText(a.reader, fmt.Sprintf("Publié ? (o/n) [%s]", yesNo(f.Published)), a.out)
	if err != nil {
		return err
	}
	f.Published = parseYesNo(published, f.Published)
	c.SetForm(f)

	save, err := getConfirm(a.reader, "Enregistrer les modifications ?", a.out)
	if err != nil {
		return err
	}
	if !save {
		c.Cancel()
		a.println("Modifications annulées.")
		return nil
	}
	if !c.Save(ctx) {
		a.println(c.State().Err)
		return nil
	}
	a.println("Article enregistré.")
	return nil
}

// Delete removes an article after confirmation.
func (a *App) Delete(ctx context.Context, id string) error {
	c := controllers.NewArticle(a.articles, a.sessions, a.logger)
	if !c.Load(ctx, a.resolveID(id)) {
		a.println(c.State().Err)
		return nil
	}

	var inputErr error
	ok := c.Delete(ctx, func(prompt string) bool {
		yes, err := getConfirm(a.reader, prompt, a.out)
		inputErr = err
		return yes
	})
	if inputErr != nil {
		return inputErr
	}
	switch {
	case ok:
		a.println("Article supprimé.")
	case c.State().Err != "":
		a.println(c.State().Err)
	}
	return nil
}

func (a *App) printList(items []models.Article, st controllers.State) {
	a.remember(items)

	a.outMu.Lock()
	defer a.outMu.Unlock()

	if st.Err != "" {
		fmt.Fprintln(a.out, st.Err)
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "Aucun article.")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, art := range items {
		badge := ""
		if !art.Published {
			badge = "[brouillon]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			art.ShortID(), art.Title, art.AuthorName(), art.CreatedAt.Local().Format(dateLayout), badge)
	}
	_ = tw.Flush()
}

func (a *App) remember(items []models.Article) {
	ids := make([]string, 0, len(items))
	for _, art := range items {
		ids = append(ids, art.ID)
	}
	a.outMu.Lock()
	defer a.outMu.Unlock()
	a.listed = ids
}

// resolveID expands a short id printed by the last list. Anything that does
// not match exactly one listed id is passed through as is.
func (a *App) resolveID(id string) string {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	match := ""
	for _, full := range a.listed {
		if full == id {
			return id
		}
		if strings.HasPrefix(full, id) {
			if match != "" {
				return id
			}
			match = full
		}
	}
	if match == "" {
		return id
	}
	return match
}

func yesNo(b bool) string {
	if b {
		return "o"
	}
	return "n"
}

// parseYesNo reads an answer, falling back to def when it is neither.
func parseYesNo(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "o", "oui", "y", "yes":
		return true
	case "n", "non", "no":
		return false
	default:
		return def
	}
}
