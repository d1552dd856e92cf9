package httpserver

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/server/auth"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// optionalUserID returns the caller's id on public routes, or "" when the
// request carries no valid token.
func (s *Server) optionalUserID(r *http.Request) string {
	token, ok := bearerToken(r)
	if !ok {
		return ""
	}
	id, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return ""
	}
	return id
}

func (s *Server) follow(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	if err := s.social.Follow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unfollow(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	if err := s.social.Unfollow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) following(w http.ResponseWriter, r *http.Request) {
	s.listRelations(w, r, s.social.Following)
}

func (s *Server) followers(w http.ResponseWriter, r *http.Request) {
	s.listRelations(w, r, s.social.Followers)
}

func (s *Server) listRelations(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, userID string, page models.Page) ([]models.User, error)) {
	page, err := pageFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	users, err := list(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userViews(users))
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, _ := userIDFromContext(r.Context())
	posts, err := s.social.Feed(r.Context(), userID, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postViews(posts))
}

func (s *Server) userPosts(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	posts, err := s.social.PostsByUser(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postViews(posts))
}

type postRequest struct {
	Content    string `json:"content"`
	PictureKey string `json:"picture_key"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	userID, _ := userIDFromContext(r.Context())
	p, err := s.social.CreatePost(r.Context(), userID, services.PostParams{
		Content:    req.Content,
		PictureKey: req.PictureKey,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPostView(p))
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	if err := s.social.DeletePost(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadView struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (s *Server) presignPicture(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	key, url, err := s.pictures.PresignUpload(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadView{Key: key, URL: url})
}

// picture redirects to a short-lived download URL for a micropost picture.
func (s *Server) picture(w http.ResponseWriter, r *http.Request) {
	p, err := s.social.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.PictureKey == "" {
		s.writeError(w, r, common.ErrorNotFound)
		return
	}

	url, err := s.pictures.PresignDownload(r.Context(), p.PictureKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}
