package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore implements Store with in-process maps. It backs unit tests
// and the demo binary; production deployments use the postgres store.
type InMemoryStore struct {
	mu   sync.RWMutex
	data *memData

	// set on the store handed to a WithinTx callback; the parent holds the
	// lock for the whole transaction, so tx operations skip locking.
	inTx bool
}

type memData struct {
	users            map[uuid.UUID]User
	usersByUsername  map[string]uuid.UUID
	passports        map[uuid.UUID]Passport // keyed by user id
	tokens           map[string]Token
	staging          map[string]StagingIdentity // keyed by hash
	stagingBySubject map[string]string          // subject id -> hash
	subjectLinks     map[string]uuid.UUID       // subject id -> user id
}

func newMemData() *memData {
	return &memData{
		users:            make(map[uuid.UUID]User),
		usersByUsername:  make(map[string]uuid.UUID),
		passports:        make(map[uuid.UUID]Passport),
		tokens:           make(map[string]Token),
		staging:          make(map[string]StagingIdentity),
		stagingBySubject: make(map[string]string),
		subjectLinks:     make(map[string]uuid.UUID),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.users {
		v.Tags = append([]string(nil), v.Tags...)
		c.users[k] = v
	}
	for k, v := range d.usersByUsername {
		c.usersByUsername[k] = v
	}
	for k, v := range d.passports {
		c.passports[k] = v
	}
	for k, v := range d.tokens {
		c.tokens[k] = v
	}
	for k, v := range d.staging {
		c.staging[k] = v
	}
	for k, v := range d.stagingBySubject {
		c.stagingBySubject[k] = v
	}
	for k, v := range d.subjectLinks {
		c.subjectLinks[k] = v
	}
	return c
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: newMemData()}
}

func (s *InMemoryStore) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *InMemoryStore) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

// FindUserByUsername finds a user by its normalized username.
func (s *InMemoryStore) FindUserByUsername(ctx context.Context, username string) (User, error) {
	s.lock()
	defer s.unlock()

	id, ok := s.data.usersByUsername[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.data.users[id], nil
}

// FindUserByID finds a user by id.
func (s *InMemoryStore) FindUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	s.lock()
	defer s.unlock()

	user, ok := s.data.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// IsUsernameTaken reports whether any user other than excludingID holds the
// username.
func (s *InMemoryStore) IsUsernameTaken(ctx context.Context, username string, excludingID uuid.UUID) (bool, error) {
	s.lock()
	defer s.unlock()

	id, ok := s.data.usersByUsername[username]
	if !ok {
		return false, nil
	}
	return id != excludingID, nil
}

// InsertUser stores a new user, assigning an id when absent.
func (s *InMemoryStore) InsertUser(ctx context.Context, user User) (User, error) {
	s.lock()
	defer s.unlock()

	if _, exists := s.data.usersByUsername[user.Username]; exists {
		return User{}, ErrDuplicateUsername
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.data.users[user.ID] = user
	s.data.usersByUsername[user.Username] = user.ID
	return user, nil
}

// UpdateUser replaces the stored record for user.ID.
func (s *InMemoryStore) UpdateUser(ctx context.Context, user User) (User, error) {
	s.lock()
	defer s.unlock()

	existing, ok := s.data.users[user.ID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if other, exists := s.data.usersByUsername[user.Username]; exists && other != user.ID {
		return User{}, ErrDuplicateUsername
	}
	delete(s.data.usersByUsername, existing.Username)
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now()
	s.data.users[user.ID] = user
	s.data.usersByUsername[user.Username] = user.ID
	return user, nil
}

// ReplaceUserTags swaps the user's full tag set.
func (s *InMemoryStore) ReplaceUserTags(ctx context.Context, userID uuid.UUID, tags []string) error {
	s.lock()
	defer s.unlock()

	user, ok := s.data.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Tags = append([]string(nil), tags...)
	user.UpdatedAt = time.Now()
	s.data.users[userID] = user
	return nil
}

// FindPassportByUserID finds the credential record for a user.
func (s *InMemoryStore) FindPassportByUserID(ctx context.Context, userID uuid.UUID) (Passport, error) {
	s.lock()
	defer s.unlock()

	passport, ok := s.data.passports[userID]
	if !ok {
		return Passport{}, ErrPassportNotFound
	}
	return passport, nil
}

// InsertPassport stores a new credential record for a user.
func (s *InMemoryStore) InsertPassport(ctx context.Context, passport Passport) (Passport, error) {
	s.lock()
	defer s.unlock()

	if passport.ID == uuid.Nil {
		passport.ID = uuid.New()
	}
	now := time.Now()
	passport.CreatedAt = now
	passport.UpdatedAt = now
	s.data.passports[passport.UserID] = passport
	return passport, nil
}

// UpdatePassport replaces the stored credential for passport.UserID.
func (s *InMemoryStore) UpdatePassport(ctx context.Context, passport Passport) error {
	s.lock()
	defer s.unlock()

	existing, ok := s.data.passports[passport.UserID]
	if !ok {
		return ErrPassportNotFound
	}
	passport.ID = existing.ID
	passport.CreatedAt = existing.CreatedAt
	passport.UpdatedAt = time.Now()
	s.data.passports[passport.UserID] = passport
	return nil
}

// InsertToken stores a token under its (already normalized) value.
func (s *InMemoryStore) InsertToken(ctx context.Context, token Token) error {
	s.lock()
	defer s.unlock()

	token.CreatedAt = time.Now()
	s.data.tokens[token.Value] = token
	return nil
}

// FindToken returns the stored token regardless of expiry or consumption.
func (s *InMemoryStore) FindToken(ctx context.Context, value string) (Token, error) {
	s.lock()
	defer s.unlock()

	token, ok := s.data.tokens[value]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return token, nil
}

// ConsumeToken marks the token consumed. Succeeds only once per token; racing
// callers and replays get ErrTokenNotFound.
func (s *InMemoryStore) ConsumeToken(ctx context.Context, value string) (Token, error) {
	s.lock()
	defer s.unlock()

	token, ok := s.data.tokens[value]
	if !ok || token.Consumed() {
		return Token{}, ErrTokenNotFound
	}
	now := time.Now()
	token.ConsumedAt = &now
	s.data.tokens[value] = token
	return token, nil
}

// InsertStaging stores a staging identity. A live record for the same subject
// id is returned as-is so concurrent federated logins for one subject never
// produce two records.
func (s *InMemoryStore) InsertStaging(ctx context.Context, staging StagingIdentity) (StagingIdentity, error) {
	s.lock()
	defer s.unlock()

	if hash, exists := s.data.stagingBySubject[staging.SubjectID]; exists {
		existing := s.data.staging[hash]
		if !existing.Consumed() && time.Now().Before(existing.ExpiresAt) {
			return existing, nil
		}
	}
	if staging.ID == uuid.Nil {
		staging.ID = uuid.New()
	}
	staging.CreatedAt = time.Now()
	s.data.staging[staging.Hash] = staging
	s.data.stagingBySubject[staging.SubjectID] = staging.Hash
	return staging, nil
}

// FindStagingByHash finds a staging identity by its correlation hash.
func (s *InMemoryStore) FindStagingByHash(ctx context.Context, hash string) (StagingIdentity, error) {
	s.lock()
	defer s.unlock()

	staging, ok := s.data.staging[hash]
	if !ok {
		return StagingIdentity{}, ErrStagingNotFound
	}
	return staging, nil
}

// SetStagingTarget records which existing account the staged subject chose to
// merge into. Fails on a consumed or expired record.
func (s *InMemoryStore) SetStagingTarget(ctx context.Context, hash string, userID uuid.UUID) error {
	s.lock()
	defer s.unlock()

	staging, ok := s.data.staging[hash]
	if !ok {
		return ErrStagingNotFound
	}
	if staging.Consumed() || !time.Now().Before(staging.ExpiresAt) {
		return ErrConflict
	}
	staging.TargetUserID = uuid.NullUUID{UUID: userID, Valid: true}
	s.data.staging[hash] = staging
	return nil
}

// ClaimStaging retires a live, unconsumed staging identity. Exactly one of
// two racing claims wins; the loser gets ErrConflict.
func (s *InMemoryStore) ClaimStaging(ctx context.Context, hash string) (StagingIdentity, error) {
	s.lock()
	defer s.unlock()

	staging, ok := s.data.staging[hash]
	if !ok {
		return StagingIdentity{}, ErrStagingNotFound
	}
	if staging.Consumed() || !time.Now().Before(staging.ExpiresAt) {
		return StagingIdentity{}, ErrConflict
	}
	now := time.Now()
	staging.ConsumedAt = &now
	s.data.staging[hash] = staging
	return staging, nil
}

// FindUserBySubjectID finds the user a federated subject id is linked to.
func (s *InMemoryStore) FindUserBySubjectID(ctx context.Context, subjectID string) (User, error) {
	s.lock()
	defer s.unlock()

	userID, ok := s.data.subjectLinks[subjectID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	user, ok := s.data.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// LinkSubjectToUser attaches a federated subject id to a user.
func (s *InMemoryStore) LinkSubjectToUser(ctx context.Context, subjectID string, userID uuid.UUID) error {
	s.lock()
	defer s.unlock()

	if _, ok := s.data.users[userID]; !ok {
		return ErrUserNotFound
	}
	s.data.subjectLinks[subjectID] = userID
	return nil
}

// WithinTx runs fn under the store lock against a snapshot-backed view. On
// error every mutation fn made is discarded.
func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &InMemoryStore{data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}
