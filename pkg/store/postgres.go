package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the postgres error code for unique_violation.
const pgUniqueViolation = "23505"

// db is satisfied by both *pgxpool.Pool and pgx.Tx, so every query method
// works unchanged inside WithinTx.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   db
	inTx bool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const userColumns = `id, username, name, title, bio, is_admin, is_agency_admin, disabled, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Title, &u.Bio,
		&u.IsAdmin, &u.IsAgencyAdmin, &u.Disabled, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) loadTags(ctx context.Context, user *User) error {
	rows, err := s.db.Query(ctx, `SELECT tag FROM user_tags WHERE user_id = $1 ORDER BY tag`, user.ID)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		user.Tags = append(user.Tags, tag)
	}
	return rows.Err()
}

// FindUserByUsername finds a user by its normalized username.
func (s *PostgresStore) FindUserByUsername(ctx context.Context, username string) (User, error) {
	user, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return User{}, err
	}
	if err := s.loadTags(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// FindUserByID finds a user by id.
func (s *PostgresStore) FindUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return User{}, err
	}
	if err := s.loadTags(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// IsUsernameTaken reports whether any user other than excludingID holds the
// username.
func (s *PostgresStore) IsUsernameTaken(ctx context.Context, username string, excludingID uuid.UUID) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND id != $2)`,
		username, excludingID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return taken, nil
}

// InsertUser stores a new user.
func (s *PostgresStore) InsertUser(ctx context.Context, user User) (User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, username, name, title, bio, is_admin, is_agency_admin, disabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		user.ID, user.Username, user.Name, user.Title, user.Bio,
		user.IsAdmin, user.IsAgencyAdmin, user.Disabled)
	inserted, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateUsername
		}
		return User{}, err
	}
	inserted.Tags = user.Tags
	return inserted, nil
}

// UpdateUser replaces the stored record for user.ID.
func (s *PostgresStore) UpdateUser(ctx context.Context, user User) (User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET username = $2, name = $3, title = $4, bio = $5,
		    is_admin = $6, is_agency_admin = $7, disabled = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Username, user.Name, user.Title, user.Bio,
		user.IsAdmin, user.IsAgencyAdmin, user.Disabled)
	updated, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateUsername
		}
		return User{}, err
	}
	updated.Tags = user.Tags
	return updated, nil
}

// ReplaceUserTags swaps the user's full tag set inside one transaction, so a
// partial failure rolls back instead of leaving a half-updated set.
func (s *PostgresStore) ReplaceUserTags(ctx context.Context, userID uuid.UUID, tags []string) error {
	return s.WithinTx(ctx, func(tx Store) error {
		ptx := tx.(*PostgresStore)
		if _, err := ptx.db.Exec(ctx, `DELETE FROM user_tags WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("delete tags: %w", err)
		}
		for _, tag := range tags {
			if _, err := ptx.db.Exec(ctx,
				`INSERT INTO user_tags (user_id, tag) VALUES ($1, $2)`, userID, tag); err != nil {
				return fmt.Errorf("insert tag: %w", err)
			}
		}
		return nil
	})
}

// FindPassportByUserID finds the credential record for a user.
func (s *PostgresStore) FindPassportByUserID(ctx context.Context, userID uuid.UUID) (Passport, error) {
	var p Passport
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, password, created_at, updated_at
		FROM passports WHERE user_id = $1`, userID).
		Scan(&p.ID, &p.UserID, &p.Password, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Passport{}, ErrPassportNotFound
	}
	if err != nil {
		return Passport{}, fmt.Errorf("scan passport: %w", err)
	}
	return p, nil
}

// InsertPassport stores a new credential record for a user.
func (s *PostgresStore) InsertPassport(ctx context.Context, passport Passport) (Passport, error) {
	if passport.ID == uuid.Nil {
		passport.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO passports (id, user_id, password)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, password, created_at, updated_at`,
		passport.ID, passport.UserID, passport.Password).
		Scan(&passport.ID, &passport.UserID, &passport.Password, &passport.CreatedAt, &passport.UpdatedAt)
	if err != nil {
		return Passport{}, fmt.Errorf("insert passport: %w", err)
	}
	return passport, nil
}

// UpdatePassport replaces the stored credential for passport.UserID.
func (s *PostgresStore) UpdatePassport(ctx context.Context, passport Passport) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE passports SET password = $2, updated_at = now()
		WHERE user_id = $1`, passport.UserID, passport.Password)
	if err != nil {
		return fmt.Errorf("update passport: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPassportNotFound
	}
	return nil
}

// InsertToken stores a token under its normalized value.
func (s *PostgresStore) InsertToken(ctx context.Context, token Token) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tokens (value, purpose, email, expires_at)
		VALUES ($1, $2, $3, $4)`,
		token.Value, token.Purpose, token.Email, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// FindToken returns the stored token regardless of expiry or consumption.
func (s *PostgresStore) FindToken(ctx context.Context, value string) (Token, error) {
	var t Token
	err := s.db.QueryRow(ctx, `
		SELECT value, purpose, email, expires_at, consumed_at, created_at
		FROM tokens WHERE value = $1`, value).
		Scan(&t.Value, &t.Purpose, &t.Email, &t.ExpiresAt, &t.ConsumedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("scan token: %w", err)
	}
	return t, nil
}

// ConsumeToken marks the token consumed. The guard on consumed_at makes this
// a compare-and-swap: two racing consumers cannot both win.
func (s *PostgresStore) ConsumeToken(ctx context.Context, value string) (Token, error) {
	var t Token
	err := s.db.QueryRow(ctx, `
		UPDATE tokens SET consumed_at = now()
		WHERE value = $1 AND consumed_at IS NULL
		RETURNING value, purpose, email, expires_at, consumed_at, created_at`, value).
		Scan(&t.Value, &t.Purpose, &t.Email, &t.ExpiresAt, &t.ConsumedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("consume token: %w", err)
	}
	return t, nil
}

const stagingColumns = `id, subject_id, hash, email, target_user_id, created_at, expires_at, consumed_at`

func scanStaging(row pgx.Row) (StagingIdentity, error) {
	var st StagingIdentity
	err := row.Scan(&st.ID, &st.SubjectID, &st.Hash, &st.Email, &st.TargetUserID,
		&st.CreatedAt, &st.ExpiresAt, &st.ConsumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StagingIdentity{}, ErrStagingNotFound
	}
	if err != nil {
		return StagingIdentity{}, fmt.Errorf("scan staging identity: %w", err)
	}
	return st, nil
}

// InsertStaging stores a staging identity. The partial unique index on
// subject_id (live records only) makes concurrent duplicate creation
// impossible; the loser reads back the winner's record. An expired
// unconsumed record is retired first so it can never block the subject's
// next login.
func (s *PostgresStore) InsertStaging(ctx context.Context, staging StagingIdentity) (StagingIdentity, error) {
	if staging.ID == uuid.Nil {
		staging.ID = uuid.New()
	}
	var out StagingIdentity
	err := s.WithinTx(ctx, func(tx Store) error {
		ptx := tx.(*PostgresStore)
		if _, err := ptx.db.Exec(ctx, `
			UPDATE staging_identities SET consumed_at = now()
			WHERE subject_id = $1 AND consumed_at IS NULL AND expires_at <= now()`,
			staging.SubjectID); err != nil {
			return fmt.Errorf("retire expired staging identity: %w", err)
		}

		inserted, err := scanStaging(ptx.db.QueryRow(ctx, `
			INSERT INTO staging_identities (id, subject_id, hash, email, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (subject_id) WHERE consumed_at IS NULL DO NOTHING
			RETURNING `+stagingColumns,
			staging.ID, staging.SubjectID, staging.Hash, staging.Email, staging.ExpiresAt))
		if err == nil {
			out = inserted
			return nil
		}
		if !errors.Is(err, ErrStagingNotFound) {
			return err
		}
		// Conflict: a live record for this subject already exists.
		out, err = scanStaging(ptx.db.QueryRow(ctx, `
			SELECT `+stagingColumns+` FROM staging_identities
			WHERE subject_id = $1 AND consumed_at IS NULL AND expires_at > now()`,
			staging.SubjectID))
		return err
	})
	if err != nil {
		return StagingIdentity{}, err
	}
	return out, nil
}

// FindStagingByHash finds a staging identity by its correlation hash.
func (s *PostgresStore) FindStagingByHash(ctx context.Context, hash string) (StagingIdentity, error) {
	return scanStaging(s.db.QueryRow(ctx,
		`SELECT `+stagingColumns+` FROM staging_identities WHERE hash = $1`, hash))
}

// SetStagingTarget records which existing account the staged subject chose to
// merge into. Fails on a consumed or expired record.
func (s *PostgresStore) SetStagingTarget(ctx context.Context, hash string, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE staging_identities SET target_user_id = $2
		WHERE hash = $1 AND consumed_at IS NULL AND expires_at > now()`, hash, userID)
	if err != nil {
		return fmt.Errorf("set staging target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := s.FindStagingByHash(ctx, hash); findErr == nil {
			return ErrConflict
		}
		return ErrStagingNotFound
	}
	return nil
}

// ClaimStaging retires a live, unconsumed staging identity via
// compare-and-swap; exactly one of two racing claims wins.
func (s *PostgresStore) ClaimStaging(ctx context.Context, hash string) (StagingIdentity, error) {
	claimed, err := scanStaging(s.db.QueryRow(ctx, `
		UPDATE staging_identities SET consumed_at = now()
		WHERE hash = $1 AND consumed_at IS NULL AND expires_at > now()
		RETURNING `+stagingColumns, hash))
	if errors.Is(err, ErrStagingNotFound) {
		// Distinguish a missing record from one already claimed or expired.
		if _, findErr := s.FindStagingByHash(ctx, hash); findErr == nil {
			return StagingIdentity{}, ErrConflict
		}
		return StagingIdentity{}, ErrStagingNotFound
	}
	return claimed, err
}

// FindUserBySubjectID finds the user a federated subject id is linked to.
func (s *PostgresStore) FindUserBySubjectID(ctx context.Context, subjectID string) (User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users u
		JOIN subject_links sl ON sl.user_id = u.id
		WHERE sl.subject_id = $1`, subjectID))
	if err != nil {
		return User{}, err
	}
	if err := s.loadTags(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// LinkSubjectToUser attaches a federated subject id to a user.
func (s *PostgresStore) LinkSubjectToUser(ctx context.Context, subjectID string, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO subject_links (subject_id, user_id) VALUES ($1, $2)
		ON CONFLICT (subject_id) DO UPDATE SET user_id = EXCLUDED.user_id`,
		subjectID, userID)
	if err != nil {
		return fmt.Errorf("link subject: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a database transaction. Nested calls join the
// enclosing transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txStore := &PostgresStore{pool: s.pool, db: tx, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
