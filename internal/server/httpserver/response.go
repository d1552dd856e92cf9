package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/services"
	"github.com/dmitrijs2005/microblog/internal/server/validation"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusUnprocessableEntity, "validation failed"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrResetExpired):
		return http.StatusGone, "password reset has expired"
	case errors.Is(err, common.ErrNotActivated):
		return http.StatusForbidden, "account not activated"
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	body := errorBody{Error: msg}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		body.Fields = verrs.Fields()
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err.Error(),
		)
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v. Malformed input is a validation error on
// the "body" field.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return validation.Single("body", validation.MsgInvalid)
	}
	return nil
}

// pageFromQuery reads limit and offset query parameters.
func pageFromQuery(r *http.Request) (models.Page, error) {
	var (
		page models.Page
		errs validation.Errors
	)
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs.Add("limit", validation.MsgInvalid)
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs.Add("offset", validation.MsgInvalid)
		}
		page.Offset = n
	}
	if err := errs.Err(); err != nil {
		return models.Page{}, err
	}
	return page.Normalize(), nil
}

type userView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Role        string     `json:"role"`
	Gender      string     `json:"gender,omitempty"`
	Activated   bool       `json:"activated"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// newUserView renders u. Email is shown only when withEmail is set.
func newUserView(u *models.User, withEmail bool) userView {
	v := userView{
		ID:        u.ID,
		Name:      u.Name,
		Role:      string(u.Role),
		Gender:    string(u.Gender),
		Activated: u.Activated,
		CreatedAt: u.CreatedAt,
	}
	if withEmail {
		v.Email = u.Email
	}
	if u.ActivatedAt.Valid {
		t := u.ActivatedAt.Time
		v.ActivatedAt = &t
	}
	return v
}

func userViews(list []models.User) []userView {
	out := make([]userView, 0, len(list))
	for i := range list {
		out = append(out, newUserView(&list[i], false))
	}
	return out
}

type postView struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	PictureURL string    `json:"picture_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func newPostView(p *models.Micropost) postView {
	v := postView{ID: p.ID, UserID: p.UserID, Content: p.Content, CreatedAt: p.CreatedAt}
	if p.PictureKey != "" {
		v.PictureURL = "/microposts/" + p.ID + "/picture"
	}
	return v
}

func postViews(list []models.Micropost) []postView {
	out := make([]postView, 0, len(list))
	for i := range list {
		out = append(out, newPostView(&list[i]))
	}
	return out
}

type sessionView struct {
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func newSessionView(s *services.Session) sessionView {
	return sessionView{UserID: s.UserID, AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt}
}

// --- remember cookie ---

const rememberCookie = common.RememberCookieName

func (s *Server) setRememberCookie(w http.ResponseWriter, userID, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     rememberCookie,
		Value:    fmt.Sprintf("%s:%s", userID, token),
		Path:     "/",
		Expires:  time.Now().Add(s.rememberTTL),
		MaxAge:   int(s.rememberTTL / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRememberCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     rememberCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// rememberFromCookie splits the cookie into user id and token. A user id that
// is not a uuid makes the cookie unusable.
func rememberFromCookie(r *http.Request) (string, string, bool) {
	c, err := r.Cookie(rememberCookie)
	if err != nil {
		return "", "", false
	}
	userID, token, ok := strings.Cut(c.Value, ":")
	if !ok || token == "" || uuid.Validate(userID) != nil {
		return "", "", false
	}
	return userID, token, true
}
