package httpserver

import (
	"net/http"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	Password             string  `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
	Gender               string  `json:"gender"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.users.Register(r.Context(), services.RegisterParams{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		Gender:               models.Gender(req.Gender),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newUserView(res.User, true))
}

type tokenRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.users.Activate(r.Context(), req.Email, req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u, true))
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.users.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if session.RememberToken != "" {
		s.setRememberCookie(w, session.UserID, session.RememberToken)
	} else {
		s.clearRememberCookie(w)
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	userID, token, ok := rememberFromCookie(r)
	if !ok {
		s.clearRememberCookie(w)
		s.writeError(w, r, common.ErrorUnauthorized)
		return
	}

	session, err := s.users.ResumeSession(r.Context(), userID, token)
	if err != nil {
		s.clearRememberCookie(w)
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	if err := s.users.Logout(r.Context(), userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearRememberCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type resetRequest struct {
	Email                string  `json:"email"`
	Token                string  `json:"token"`
	Password             string  `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

func (s *Server) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	// same answer whether or not the address is known
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.users.ResetPassword(r.Context(), services.ResetParams{
		Email:                req.Email,
		Token:                req.Token,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearRememberCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword      string  `json:"current_password"`
	Password             string  `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	userID, _ := userIDFromContext(r.Context())
	err := s.users.ChangePassword(r.Context(), userID, services.ChangePasswordParams{
		CurrentPassword:      req.CurrentPassword,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearRememberCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.users.List(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userViews(list))
}

type profileView struct {
	userView
	Following  int   `json:"following"`
	Followers  int   `json:"followers"`
	Microposts int   `json:"microposts"`
	FollowedBy *bool `json:"followed_by_you,omitempty"`
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.social.Profile(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	viewerID := s.optionalUserID(r)
	view := profileView{
		userView:   newUserView(p.User, viewerID == id),
		Following:  p.Following,
		Followers:  p.Followers,
		Microposts: p.Microposts,
	}
	if viewerID != "" && viewerID != id {
		following, err := s.social.IsFollowing(r.Context(), viewerID, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		view.FollowedBy = &following
	}
	writeJSON(w, http.StatusOK, view)
}

type profileRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Gender *string `json:"gender"`
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	params := services.ProfileParams{Name: req.Name, Email: req.Email}
	if req.Gender != nil {
		g := models.Gender(*req.Gender)
		params.Gender = &g
	}

	actorID, _ := userIDFromContext(r.Context())
	u, err := s.users.UpdateProfile(r.Context(), actorID, chi.URLParam(r, "id"), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u, true))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, _ := userIDFromContext(r.Context())
	targetID := chi.URLParam(r, "id")

	if err := s.users.Delete(r.Context(), actorID, targetID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if actorID == targetID {
		s.clearRememberCookie(w)
	}
	w.WriteHeader(http.StatusNoContent)
}
