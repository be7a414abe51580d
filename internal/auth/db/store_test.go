package db_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/willemschots/accounts/internal/auth"
	authdb "github.com/willemschots/accounts/internal/auth/db"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/db/testdb"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/errorz"
)

func Test_Store_CreateAndFind(t *testing.T) {
	t.Run("ok, create assigns id and stores all fields", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u := newUser("alice@example.com")
		err := store.Create(context.Background(), &u)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		if u.ID == "" {
			t.Fatalf("expected id to be assigned")
		}

		got, found, err := store.FindByID(context.Background(), u.ID)
		if err != nil {
			t.Fatalf("failed to find user: %v", err)
		}

		if !found {
			t.Fatalf("expected user to be found")
		}

		assertUser(t, got, u)
	})

	t.Run("ok, find by username ignores case", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u := newUser("Ålice@Example.com")
		createUser(t, store, &u)

		for _, username := range []string{"ålice@example.com", "ÅLICE@EXAMPLE.COM", "Ålice@Example.com"} {
			got, found, err := store.FindByUsername(context.Background(), username)
			if err != nil {
				t.Fatalf("failed to find user: %v", err)
			}

			if !found || got.ID != u.ID {
				t.Errorf("expected to find user %s by %q, got %+v", u.ID, username, got)
			}
		}
	})

	t.Run("ok, not found is not an error", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		_, found, err := store.FindByUsername(context.Background(), "nobody@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if found {
			t.Errorf("expected no user to be found")
		}

		_, found, err = store.FindByID(context.Background(), "does-not-exist")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if found {
			t.Errorf("expected no user to be found")
		}
	})

	duplicates := map[string][2]string{
		"ascii":     {"alice@example.com", "ALICE@example.com"},
		"non-ascii": {"Ålice@example.com", "ålice@example.com"},
		"greek":     {"ΣΟΦΙΑ@example.com", "σοφια@example.com"},
	}

	for name, pair := range duplicates {
		t.Run("fail, "+name+" username differing only in case", func(t *testing.T) {
			store := authdb.New(testdb.RunWhile(t))

			u1 := newUser(pair[0])
			createUser(t, store, &u1)

			u2 := newUser(pair[1])
			err := store.Create(context.Background(), &u2)
			if !errors.Is(err, errorz.ErrDataAccess) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrDataAccess, err)
			}

			if !errors.Is(err, errorz.ErrConstraintViolated) {
				t.Errorf("expected error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
			}

			if u2.ID != "" {
				t.Errorf("expected no id to be assigned, got %q", u2.ID)
			}
		})
	}

	t.Run("fail, update to username differing only in case", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u1 := newUser("Ålice@example.com")
		createUser(t, store, &u1)
		u2 := newUser("bob@example.com")
		createUser(t, store, &u2)

		u2.Username = email.Address("ålice@example.com")
		err := store.Update(context.Background(), &u2)
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
		}
	})

	t.Run("fail, ambiguous username", func(t *testing.T) {
		p := testdb.RunWhile(t)
		store := authdb.New(p)

		dropIndex(t, p, "Users_NormalizedUserName")

		u1 := newUser("alice@example.com")
		createUser(t, store, &u1)
		u2 := newUser("alice@example.com")
		createUser(t, store, &u2)

		_, _, err := store.FindByUsername(context.Background(), "alice@example.com")
		if !errors.Is(err, errorz.ErrAmbiguousResult) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrAmbiguousResult, err)
		}
	})

	t.Run("fail, deadline exceeded", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		_, _, err := store.FindByUsername(ctx, "alice@example.com")
		if !errors.Is(err, errorz.ErrTimeout) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrTimeout, err)
		}

		var dErr errorz.DataAccess
		if !errors.As(err, &dErr) || dErr.Component != "auth/db.Store" {
			t.Errorf("expected component auth/db.Store, got %+v", dErr)
		}
	})
}

func Test_Store_UpdateAndDelete(t *testing.T) {
	t.Run("ok, update overwrites all fields", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u := newUser("alice@example.com")
		createUser(t, store, &u)

		u.Nickname = "Alice the Second"
		u.PasswordHash = "other-hash"
		u.SecurityStamp = "other-stamp"
		u.IsConfirmed = true
		u.ConfirmationToken = "other-token"
		u.CreatedDate = u.CreatedDate.Add(time.Hour)

		err := store.Update(context.Background(), &u)
		if err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		got, _, err := store.FindByID(context.Background(), u.ID)
		if err != nil {
			t.Fatalf("failed to find user: %v", err)
		}

		assertUser(t, got, u)
	})

	t.Run("ok, update of missing user does nothing", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u := newUser("alice@example.com")
		u.ID = "does-not-exist"

		err := store.Update(context.Background(), &u)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, found, err := store.FindByUsername(context.Background(), "alice@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if found {
			t.Errorf("expected no user to be created")
		}
	})

	t.Run("ok, delete does not remove external logins", func(t *testing.T) {
		p := testdb.RunWhile(t)
		store := authdb.New(p)

		u := newUser("alice@example.com")
		createUser(t, store, &u)

		login := auth.LoginInfo{Provider: "github", ProviderKey: "1234"}
		err := store.AddExternalLogin(context.Background(), &u, login)
		if err != nil {
			t.Fatalf("failed to add external login: %v", err)
		}

		err = store.Delete(context.Background(), &u)
		if err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}

		_, found, err := store.FindByID(context.Background(), u.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if found {
			t.Errorf("expected user to be deleted")
		}

		var n int
		err = p.DB().QueryRow(`SELECT COUNT(*) FROM ExternalLogins WHERE UserId = ?`, u.ID).Scan(&n)
		if err != nil {
			t.Fatalf("failed to count external logins: %v", err)
		}

		if n != 1 {
			t.Errorf("expected orphaned external login to remain, got %d rows", n)
		}

		// The orphan can't be used to find a user.
		_, found, err = store.FindByExternalLogin(context.Background(), login)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if found {
			t.Errorf("expected no user for orphaned login")
		}
	})
}

func Test_Store_ExternalLogins(t *testing.T) {
	t.Run("ok, linked login finds user", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u := newUser("alice@example.com")
		createUser(t, store, &u)

		login := auth.LoginInfo{Provider: "github", ProviderKey: "1234"}
		err := store.AddExternalLogin(context.Background(), &u, login)
		if err != nil {
			t.Fatalf("failed to add external login: %v", err)
		}

		got, found, err := store.FindByExternalLogin(context.Background(), login)
		if err != nil {
			t.Fatalf("failed to find user: %v", err)
		}

		if !found {
			t.Fatalf("expected user to be found")
		}

		assertUser(t, got, u)
	})

	t.Run("ok, list and remove", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u := newUser("alice@example.com")
		createUser(t, store, &u)

		github := auth.LoginInfo{Provider: "github", ProviderKey: "1234"}
		google := auth.LoginInfo{Provider: "google", ProviderKey: "5678"}

		for _, l := range []auth.LoginInfo{google, github} {
			err := store.AddExternalLogin(context.Background(), &u, l)
			if err != nil {
				t.Fatalf("failed to add external login: %v", err)
			}
		}

		got, err := store.ExternalLogins(context.Background(), &u)
		if err != nil {
			t.Fatalf("failed to list external logins: %v", err)
		}

		want := []auth.LoginInfo{github, google}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got\n%+v\nwant\n%+v", got, want)
		}

		err = store.RemoveExternalLogin(context.Background(), &u, github)
		if err != nil {
			t.Fatalf("failed to remove external login: %v", err)
		}

		got, err = store.ExternalLogins(context.Background(), &u)
		if err != nil {
			t.Fatalf("failed to list external logins: %v", err)
		}

		want = []auth.LoginInfo{google}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got\n%+v\nwant\n%+v", got, want)
		}

		_, found, err := store.FindByExternalLogin(context.Background(), github)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if found {
			t.Errorf("expected removed login not to find a user")
		}
	})

	t.Run("ok, no logins", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u := newUser("alice@example.com")
		createUser(t, store, &u)

		got, err := store.ExternalLogins(context.Background(), &u)
		if err != nil {
			t.Fatalf("failed to list external logins: %v", err)
		}

		if len(got) != 0 {
			t.Errorf("expected no logins, got %+v", got)
		}
	})

	t.Run("fail, login linked to a second user", func(t *testing.T) {
		store := authdb.New(testdb.RunWhile(t))

		u1 := newUser("alice@example.com")
		createUser(t, store, &u1)
		u2 := newUser("bob@example.com")
		createUser(t, store, &u2)

		login := auth.LoginInfo{Provider: "github", ProviderKey: "1234"}
		err := store.AddExternalLogin(context.Background(), &u1, login)
		if err != nil {
			t.Fatalf("failed to add external login: %v", err)
		}

		err = store.AddExternalLogin(context.Background(), &u2, login)
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
		}
	})

	t.Run("fail, ambiguous external login", func(t *testing.T) {
		p := testdb.RunWhile(t)
		store := authdb.New(p)

		dropIndex(t, p, "ExternalLogins_Provider_Key")

		u1 := newUser("alice@example.com")
		createUser(t, store, &u1)
		u2 := newUser("bob@example.com")
		createUser(t, store, &u2)

		login := auth.LoginInfo{Provider: "github", ProviderKey: "1234"}
		for _, u := range []*auth.User{&u1, &u2} {
			err := store.AddExternalLogin(context.Background(), u, login)
			if err != nil {
				t.Fatalf("failed to add external login: %v", err)
			}
		}

		_, _, err := store.FindByExternalLogin(context.Background(), login)
		if !errors.Is(err, errorz.ErrAmbiguousResult) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrAmbiguousResult, err)
		}
	})
}

func Test_Store_NilUser(t *testing.T) {
	store := authdb.New(testdb.RunWhile(t))
	ctx := context.Background()
	login := auth.LoginInfo{Provider: "github", ProviderKey: "1234"}

	tests := map[string]func() error{
		"Create":              func() error { return store.Create(ctx, nil) },
		"Delete":              func() error { return store.Delete(ctx, nil) },
		"Update":              func() error { return store.Update(ctx, nil) },
		"AddExternalLogin":    func() error { return store.AddExternalLogin(ctx, nil, login) },
		"RemoveExternalLogin": func() error { return store.RemoveExternalLogin(ctx, nil, login) },
		"ExternalLogins": func() error {
			_, err := store.ExternalLogins(ctx, nil)
			return err
		},
		"SetPasswordHash": func() error { return store.SetPasswordHash(nil, "hash") },
		"PasswordHash": func() error {
			_, err := store.PasswordHash(nil)
			return err
		},
		"HasPassword": func() error {
			_, err := store.HasPassword(nil)
			return err
		},
		"SetSecurityStamp": func() error { return store.SetSecurityStamp(nil, "stamp") },
		"SecurityStamp": func() error {
			_, err := store.SecurityStamp(nil)
			return err
		},
	}

	for name, call := range tests {
		t.Run("fail, "+name, func(t *testing.T) {
			err := call()
			if !errors.Is(err, errorz.ErrInvalidArgument) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrInvalidArgument, err)
			}
		})
	}
}

func Test_Store_Accessors(t *testing.T) {
	store := authdb.New(testdb.RunWhile(t))

	u := auth.User{}

	t.Run("ok, no password", func(t *testing.T) {
		has, err := store.HasPassword(&u)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if has {
			t.Errorf("expected no password")
		}
	})

	t.Run("ok, set and get", func(t *testing.T) {
		err := store.SetPasswordHash(&u, "hash")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err = store.SetSecurityStamp(&u, "stamp")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		hash, _ := store.PasswordHash(&u)
		stamp, _ := store.SecurityStamp(&u)
		has, _ := store.HasPassword(&u)

		if hash != "hash" || stamp != "stamp" || !has {
			t.Errorf("unexpected values: hash %q, stamp %q, has password %v", hash, stamp, has)
		}
	})
}

func newUser(username string) auth.User {
	return auth.User{
		Username:          email.Address(username),
		Nickname:          "Alice",
		PasswordHash:      "$argon2id$v=19$m=47104,t=1,p=1$c2FsdA$aGFzaA",
		SecurityStamp:     "stamp",
		IsConfirmed:       false,
		ConfirmationToken: "token",
		CreatedDate:       time.Date(2024, 3, 20, 14, 56, 0, 0, time.UTC),
	}
}

func createUser(t *testing.T, store *authdb.Store, u *auth.User) {
	t.Helper()

	err := store.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
}

func assertUser(t *testing.T, got, want auth.User) {
	t.Helper()

	if !got.CreatedDate.Equal(want.CreatedDate) {
		t.Errorf("got created date %v, want %v", got.CreatedDate, want.CreatedDate)
	}

	got.CreatedDate = want.CreatedDate
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got\n%+v\nwant\n%+v", got, want)
	}
}

func dropIndex(t *testing.T, p *db.Provider, name string) {
	t.Helper()

	_, err := p.DB().Exec(`DROP INDEX ` + name)
	if err != nil {
		t.Fatalf("failed to drop index: %v", err)
	}
}
