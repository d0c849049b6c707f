package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/vulnblog/internal/client/controllers"
)

// readFile is a test seam for os.ReadFile.
var readFile = os.ReadFile

// Dashboard runs the signed-in area until the user types "back". The
// article list stays live for as long as the dashboard is open.
func (a *App) Dashboard(ctx context.Context) error {
	d := controllers.NewDashboard(a.sessions, a.articles, a.profiles, a.changes, a.logger)
	if err := d.Open(ctx, nil); err != nil {
		if errors.Is(err, controllers.ErrSignInRequired) {
			a.println("Connectez-vous d'abord ('signin').")
			return nil
		}
		return err
	}
	defer d.Close()

	a.println("Tableau de bord : articles, new, profile, editprofile, avatar <fichier>, back")
	a.printList(d.List().Articles(), d.List().State())

	for {
		line, err := getSimpleText(a.reader, fmt.Sprintf("dashboard [%s]", d.Tab()), a.out)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var cmdErr error
		switch parts[0] {
		case "help":
			a.println("Commandes : articles, new, profile, editprofile, avatar <fichier>, back")
		case "articles", "1":
			d.SetTab(controllers.TabArticles)
			a.printList(d.List().Articles(), d.List().State())
		case "new", "create", "2":
			cmdErr = a.createArticle(ctx, d)
		case "profile", "3":
			d.SetTab(controllers.TabProfile)
			a.showProfile(ctx, d.Profile())
		case "editprofile":
			d.SetTab(controllers.TabProfile)
			cmdErr = a.editProfile(ctx, d.Profile())
		case "avatar":
			if len(parts) < 2 {
				a.println("Usage: avatar <fichier>")
				continue
			}
			d.SetTab(controllers.TabProfile)
			cmdErr = a.uploadAvatar(ctx, d.Profile(), parts[1])
		case "back", "exit", "quit":
			return nil
		default:
			a.println("Commande inconnue :", parts[0])
		}
		if cmdErr != nil {
			return cmdErr
		}
	}
}

func (a *App) createArticle(ctx context.Context, d *controllers.Dashboard) error {
	d.SetTab(controllers.TabCreate)

	var f controllers.ArticleForm
	var err error
	if f.Title, err = getSimpleText(a.reader, "Titre", a.out); err != nil {
		return err
	}
	if f.Body, err = getMultiline(a.reader, "Contenu", a.out); err != nil {
		return err
	}
	if f.Published, err = getConfirm(a.reader, "Publier maintenant ?", a.out); err != nil {
		return err
	}

	if !d.Create(ctx, f) {
		a.println(d.State().Err)
		return nil
	}
	a.println(d.State().Message)
	a.printList(d.List().Articles(), d.List().State())
	return nil
}

func (a *App) showProfile(ctx context.Context, p *controllers.Profile) {
	if !p.Load(ctx) {
		a.println(p.State().Err)
		return
	}
	prof := p.Profile()
	avatar := prof.Avatar()
	if avatar == "" {
		avatar = "(aucun)"
	}
	a.printf("Nom d'utilisateur : %s\nEmail : %s\nAvatar : %s\nMembre depuis : %s\n",
		prof.Username, prof.Email, avatar, prof.CreatedAt.Local().Format(dateLayout))
}

// editProfile asks for a username and avatar URL; empty input keeps the
// current value and "-" removes the avatar.
func (a *App) editProfile(ctx context.Context, p *controllers.Profile) error {
	if !p.Load(ctx) {
		a.println(p.State().Err)
		return nil
	}
	f := p.Form()

	username, err := getSimpleText(a.reader, fmt.Sprintf("Nom d'utilisateur [%s]", f.Username), a.out)
	if err != nil {
		return err
	}
	if username != "" {
		f.Username = username
	}
	avatar, err := getSimpleText(a.reader, fmt.Sprintf("URL de l'avatar [%s] ('-' pour retirer)", f.AvatarURL), a.out)
	if err != nil {
		return err
	}
	switch avatar {
	case "":
	case "-":
		f.AvatarURL = ""
	default:
		f.AvatarURL = avatar
	}
	p.SetForm(f)

	return a.saveProfile(ctx, p)
}

// uploadAvatar stores the file, puts its URL in the form and offers to save.
func (a *App) uploadAvatar(ctx context.Context, p *controllers.Profile, path string) error {
	if p.Profile() == nil && !p.Load(ctx) {
		a.println(p.State().Err)
		return nil
	}
	data, err := readFile(path)
	if err != nil {
		a.println("Fichier illisible :", err)
		return nil
	}
	if !p.UploadAvatar(ctx, data, filepath.Base(path)) {
		a.println(p.State().Err)
		return nil
	}
	a.println("Avatar envoyé :", p.Form().AvatarURL)
	return a.saveProfile(ctx, p)
}

func (a *App) saveProfile(ctx context.Context, p *controllers.Profile) error {
	save, err := getConfirm(a.reader, "Enregistrer le profil ?", a.out)
	if err != nil {
		return err
	}
	if !save {
		p.Cancel()
		a.println("Modifications annulées.")
		return nil
	}
	if !p.Save(ctx) {
		a.println(p.State().Err)
		return nil
	}
	a.println("Profil enregistré.")
	return nil
}
