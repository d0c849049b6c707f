// Package controllers holds the per-page state of the client: what is
// loading, the last error as a readable message, and the data shown.
//
// Controllers never return errors to the shell. Every failure is turned
// into a message kept in State, and the operation reports success as a
// bool.
package controllers

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

// Messages shown to the user.
const (
	MsgSignedUp       = "Inscription réussie ! Vous pouvez maintenant vous connecter."
	MsgArticleCreated = "Article créé avec succès !"
	MsgDraft          = "Brouillon - Non publié"
	MsgConfirmDelete  = "Supprimer cet article ?"

	msgGeneric       = "Une erreur est survenue"
	msgLoadList      = "Erreur lors du chargement"
	msgLoadArticle   = "Article non trouvé"
	msgLoadProfile   = "Erreur lors du chargement du profil"
	msgCreate        = "Erreur lors de la création"
	msgSave          = "Erreur lors de la sauvegarde"
	msgDelete        = "Erreur lors de la suppression"
	msgUpload        = "Erreur lors de l'upload"
	msgSignInNeeded  = "Connexion requise"
	msgNothingLoaded = "Aucun article chargé"
)

// ErrSignInRequired is returned by views that need an identity.
var ErrSignInRequired = errors.New(msgSignInNeeded)

// Sessions is the part of the session manager the controllers use.
type Sessions interface {
	CurrentIdentity(ctx context.Context) *models.Identity
	SignIn(ctx context.Context, email, password string) (*models.Identity, error)
	SignUp(ctx context.Context, email, password, displayName string) (*models.Identity, error)
	SignOut(ctx context.Context)
}

// State is the loading/error/success triple every page carries.
type State struct {
	Loading bool
	Err     string
	Message string
}

func (s *State) begin() {
	s.Loading = true
	s.Err = ""
	s.Message = ""
}

func (s *State) fail(err error, fallback string) bool {
	s.Loading = false
	s.Err = describe(err, fallback)
	return false
}

func (s *State) succeed(msg string) bool {
	s.Loading = false
	s.Message = msg
	return true
}

// describe turns err into the text shown to the user. Authentication and
// validation failures carry a message meant for people and are shown as
// is, and so does a request that never reached the platform. Anything the
// platform reported otherwise gets the page's fallback text.
func describe(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if fallback == "" {
		fallback = msgGeneric
	}

	var ae *common.AuthenticationError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	var ve *common.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var re *common.RemoteError
	if errors.As(err, &re) && re.Status == 0 && re.Err != nil {
		return re.Error()
	}
	if errors.Is(err, ErrSignInRequired) {
		return msgSignInNeeded
	}
	return fallback
}
