package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aalmada/BookStore-sub003/internal/domain"
)

type registerUserReq struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type rateReq struct {
	Stars int `json:"stars"`
}

// userStreamID maps a JWT subject onto the stream key character set.
// Subjects from external issuers carry characters like '|' that stream
// keys do not allow.
func userStreamID(sub string) string {
	const maxLen = 128
	out := []byte(sub)
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// me resolves the caller's user stream id. Every /users/me route acts on
// the stream owned by the token's subject, never on a client-chosen id.
func (s *server) me(c echo.Context) (string, error) {
	sub, err := s.callerOf(c)
	if err != nil {
		return "", err
	}
	return userStreamID(sub), nil
}

func (s *server) registerUser(c echo.Context) error {
	var req registerUserReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	id, err := s.me(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	u := &domain.User{}
	c.Response().Header().Set(echo.HeaderLocation, "/api/users/me")
	return s.exec(c, domain.StreamUser, id, true, u, func() error {
		return u.Register(id, req.Name, req.Email)
	})
}

func (s *server) getMe(c echo.Context) error {
	id, err := s.me(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	return getDoc(s, c, s.cfg.Stores.Users, id)
}

func (s *server) renameMe(c echo.Context) error {
	var req renameReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	id, err := s.me(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	u := &domain.User{}
	return s.exec(c, domain.StreamUser, id, false, u, func() error {
		return u.Rename(req.Name)
	})
}

func (s *server) deleteMe(c echo.Context) error {
	id, err := s.me(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	u := &domain.User{}
	return s.exec(c, domain.StreamUser, id, false, u, func() error {
		return u.Delete()
	})
}

func (s *server) restoreMe(c echo.Context) error {
	id, err := s.me(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	u := &domain.User{}
	return s.exec(c, domain.StreamUser, id, false, u, func() error {
		return u.Restore()
	})
}

func (s *server) favoriteBook(c echo.Context) error {
	id, err := s.me(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	u := &domain.User{}
	return s.exec(c, domain.StreamUser, id, false, u, func() error {
		return u.Favorite(c.Param("bookId"))
	})
}

func (s *server) unfavoriteBook(c echo.Context) error {
	id, err := s.me(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	u := &domain.User{}
	return s.exec(c, domain.StreamUser, id, false, u, func() error {
		return u.Unfavorite(c.Param("bookId"))
	})
}

func (s *server) rateBook(c echo.Context) error {
	var req rateReq
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	id, err := s.me(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	u := &domain.User{}
	return s.exec(c, domain.StreamUser, id, false, u, func() error {
		return u.Rate(c.Param("bookId"), req.Stars)
	})
}
