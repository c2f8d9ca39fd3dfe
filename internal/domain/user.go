package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
)

// User tracks a reader's profile, favorite books and ratings. Favorite and
// rating events live on the user's stream; the per-book tallies are derived
// by the stats projection.
type User struct {
	Base
	Name      string
	Email     string
	Favorites []string
	Ratings   map[string]int
}

func (u *User) Apply(ev eventlog.Event) error {
	u.touch(ev)
	switch ev.Type {
	case EventUserRegistered:
		var p UserRegistered
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		u.ID = p.ID
		u.Name = p.Name
		u.Email = p.Email
	case EventUserRenamed:
		var p UserRenamed
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		u.Name = p.Name
	case EventBookFavorited:
		var p BookFavorited
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		u.Favorites = appendMissing(u.Favorites, p.BookID)
	case EventBookUnfavorited:
		var p BookUnfavorited
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		u.Favorites = remove(u.Favorites, p.BookID)
	case EventBookRated:
		var p BookRated
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		if u.Ratings == nil {
			u.Ratings = make(map[string]int)
		}
		u.Ratings[p.BookID] = p.Stars
	case EventUserDeleted:
		u.Deleted = true
		u.DeletedAt = ev.Time
	case EventUserRestored:
		u.Deleted = false
		u.DeletedAt = 0
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
	return nil
}

func (u *User) Register(id, name, email string) error {
	if u.ID != "" {
		return invalid("already-exists", "user %s already exists", u.ID)
	}
	if id == "" {
		return invalid("missing-id", "user id is required")
	}
	if name == "" {
		return invalid("missing-name", "user name is required")
	}
	if email != "" && !strings.Contains(email, "@") {
		return invalid("bad-email", "email %q is not an address", email)
	}
	return u.raise(u, EventUserRegistered, UserRegistered{ID: id, Name: name, Email: email})
}

func (u *User) Rename(name string) error {
	if err := u.mutable(); err != nil {
		return err
	}
	if name == "" {
		return invalid("missing-name", "user name is required")
	}
	if name == u.Name {
		return nil
	}
	return u.raise(u, EventUserRenamed, UserRenamed{Name: name})
}

func (u *User) Favorite(bookID string) error {
	if err := u.mutable(); err != nil {
		return err
	}
	if bookID == "" {
		return invalid("missing-id", "book id is required")
	}
	if contains(u.Favorites, bookID) {
		return invalid("already-favorite", "book %s is already a favorite", bookID)
	}
	return u.raise(u, EventBookFavorited, BookFavorited{BookID: bookID})
}

func (u *User) Unfavorite(bookID string) error {
	if err := u.mutable(); err != nil {
		return err
	}
	if !contains(u.Favorites, bookID) {
		return invalid("not-favorite", "book %s is not a favorite", bookID)
	}
	return u.raise(u, EventBookUnfavorited, BookUnfavorited{BookID: bookID})
}

func (u *User) Rate(bookID string, stars int) error {
	if err := u.mutable(); err != nil {
		return err
	}
	if bookID == "" {
		return invalid("missing-id", "book id is required")
	}
	if stars < 1 || stars > 5 {
		return invalid("bad-rating", "rating %d out of range [1, 5]", stars)
	}
	if current, ok := u.Ratings[bookID]; ok && current == stars {
		return nil
	}
	return u.raise(u, EventBookRated, BookRated{BookID: bookID, Stars: stars})
}

func (u *User) Delete() error {
	if err := u.mutable(); err != nil {
		return err
	}
	return u.raise(u, EventUserDeleted, struct{}{})
}

func (u *User) Restore() error {
	if !u.Deleted {
		return invalid("not-deleted", "user %s is not deleted", u.ID)
	}
	return u.raise(u, EventUserRestored, struct{}{})
}
