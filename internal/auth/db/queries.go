package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/errorz"
)

type execFn func(query string, params ...any) (sql.Result, error)
type queryFn func(query string, params ...any) (*sql.Rows, error)

func execFunc(ctx context.Context, conn *sql.Conn) execFn {
	return func(query string, params ...any) (sql.Result, error) {
		return conn.ExecContext(ctx, query, params...)
	}
}

func queryFunc(ctx context.Context, conn *sql.Conn) queryFn {
	return func(query string, params ...any) (*sql.Rows, error) {
		return conn.QueryContext(ctx, query, params...)
	}
}

const userColumns = `u.Id, u.UserName, u.Nickname, u.PasswordHash, u.SecurityStamp, u.IsConfirmed, u.ConfirmationToken, u.CreatedDate`

// normalizeUsername folds case with full Unicode rules. Uniqueness and
// lookups use the result, database LOWER functions differ per engine.
func normalizeUsername(username string) string {
	return strings.ToLower(username)
}

// Single row lookups only need to know whether there's more than one match.
const ambiguityLimit = 2

func insertUser(q *db.Query, ef execFn, id string, u auth.User) error {
	q.Unsafe(`INSERT INTO Users (Id, UserName, NormalizedUserName, Nickname, PasswordHash, SecurityStamp, IsConfirmed, ConfirmationToken, CreatedDate) VALUES (`)
	q.Params(id, string(u.Username), normalizeUsername(string(u.Username)), string(u.Nickname), u.PasswordHash, u.SecurityStamp, u.IsConfirmed, u.ConfirmationToken, u.CreatedDate.UTC())
	q.Unsafe(`)`)

	s, params := q.Get()

	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updateUser(q *db.Query, ef execFn, u auth.User) error {
	q.Unsafe(`UPDATE Users SET `)

	q.Unsafe(`UserName = `)
	q.Param(string(u.Username))

	q.Unsafe(`, NormalizedUserName = `)
	q.Param(normalizeUsername(string(u.Username)))

	q.Unsafe(`, Nickname = `)
	q.Param(string(u.Nickname))

	q.Unsafe(`, PasswordHash = `)
	q.Param(u.PasswordHash)

	q.Unsafe(`, SecurityStamp = `)
	q.Param(u.SecurityStamp)

	q.Unsafe(`, IsConfirmed = `)
	q.Param(u.IsConfirmed)

	q.Unsafe(`, ConfirmationToken = `)
	q.Param(u.ConfirmationToken)

	q.Unsafe(`, CreatedDate = `)
	q.Param(u.CreatedDate.UTC())

	q.Unsafe(` WHERE Id = `)
	q.Param(u.ID)

	s, params := q.Get()

	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func deleteUser(q *db.Query, ef execFn, id string) error {
	q.Unsafe(`DELETE FROM Users WHERE Id = `)
	q.Param(id)

	s, params := q.Get()

	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func selectUsers(q *db.Query, qf queryFn, where func(q *db.Query)) ([]auth.User, error) {
	q.Unsafe(`SELECT ` + userColumns + ` FROM Users u WHERE `)
	where(q)
	q.Unsafe(fmt.Sprintf(` LIMIT %d`, ambiguityLimit))

	return scanUsers(q, qf)
}

func selectUsersByExternalLogin(q *db.Query, qf queryFn, login auth.LoginInfo) ([]auth.User, error) {
	q.Unsafe(`SELECT ` + userColumns + ` FROM Users u INNER JOIN ExternalLogins l ON l.UserId = u.Id WHERE l.LoginProvider = `)
	q.Param(login.Provider)
	q.Unsafe(` AND l.ProviderKey = `)
	q.Param(login.ProviderKey)
	q.Unsafe(fmt.Sprintf(` LIMIT %d`, ambiguityLimit))

	return scanUsers(q, qf)
}

func scanUsers(q *db.Query, qf queryFn) ([]auth.User, error) {
	s, params := q.Get()

	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.User, 0)
	for rows.Next() {
		var (
			u                  auth.User
			username, nickname string
		)
		err := rows.Scan(&u.ID, &username, &nickname, &u.PasswordHash, &u.SecurityStamp, &u.IsConfirmed, &u.ConfirmationToken, &u.CreatedDate)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		// Stored values were validated on the way in.
		u.Username = email.Address(username)
		u.Nickname = auth.Nickname(nickname)
		u.CreatedDate = u.CreatedDate.UTC()

		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func insertExternalLogin(q *db.Query, ef execFn, l auth.ExternalLogin) error {
	q.Unsafe(`INSERT INTO ExternalLogins (ExternalLoginId, UserId, LoginProvider, ProviderKey) VALUES (`)
	q.Params(l.ID, l.UserID, l.Provider, l.ProviderKey)
	q.Unsafe(`)`)

	s, params := q.Get()

	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func deleteExternalLogin(q *db.Query, ef execFn, userID string, login auth.LoginInfo) error {
	q.Unsafe(`DELETE FROM ExternalLogins WHERE UserId = `)
	q.Param(userID)
	q.Unsafe(` AND LoginProvider = `)
	q.Param(login.Provider)
	q.Unsafe(` AND ProviderKey = `)
	q.Param(login.ProviderKey)

	s, params := q.Get()

	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func selectExternalLogins(q *db.Query, qf queryFn, userID string) ([]auth.LoginInfo, error) {
	q.Unsafe(`SELECT LoginProvider, ProviderKey FROM ExternalLogins WHERE UserId = `)
	q.Param(userID)
	q.Unsafe(` ORDER BY LoginProvider ASC, ProviderKey ASC`)

	s, params := q.Get()

	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.LoginInfo, 0)
	for rows.Next() {
		var l auth.LoginInfo
		err := rows.Scan(&l.Provider, &l.ProviderKey)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		out = append(out, l)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}
