package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bitwise74/notes-api/db"
	"bitwise74/notes-api/internal/blob"
	"bitwise74/notes-api/internal/errs"
	"bitwise74/notes-api/internal/model"
	"bitwise74/notes-api/internal/store"
	"bitwise74/notes-api/pkg/security"
	"bitwise74/notes-api/pkg/validators"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBlobs counts calls into a real local store and can be told to fail
type fakeBlobs struct {
	blob.Store

	uploads    int
	deletes    int
	failUpload bool
	failDelete bool
}

func (f *fakeBlobs) Upload(ctx context.Context, r io.Reader, name, mimeType string) (*blob.Object, error) {
	f.uploads++
	if f.failUpload {
		return nil, errs.Wrap(errs.StorageWrite, "Failed to upload file to storage", errors.New("disk on fire"))
	}

	return f.Store.Upload(ctx, r, name, mimeType)
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) (bool, error) {
	f.deletes++
	if f.failDelete {
		return false, errors.New("bucket unreachable")
	}

	return f.Store.Delete(ctx, key)
}

type env struct {
	users *store.Users
	notes *store.Notes
	blobs *fakeBlobs
	svc   *Notes
	admin *Admin
	auth  *Auth
}

func newEnv(t *testing.T) *env {
	t.Helper()

	conn, err := db.New(db.Config{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)

	local, err := blob.NewLocal(t.TempDir(), "")
	require.NoError(t, err)

	argon := security.NewArgon()
	argon.Memory = 1024
	argon.Iterations = 1

	e := &env{blobs: &fakeBlobs{Store: local}}
	e.users = store.NewUsers(conn)
	e.notes = store.NewNotes(conn, e.users)
	e.svc = NewNotes(e.notes, e.blobs, validators.DefaultUploadRules())
	e.admin = NewAdmin(e.users, e.notes, e.svc)
	e.auth = NewAuth(e.users, argon, security.NewTokens("test-secret"), AuthConfig{
		AdminID:       "root",
		AdminPassword: "hunter2",
		AdminEmail:    "Boss@Example.com",
	})

	return e
}

func (e *env) register(t *testing.T, name, email string) *Session {
	t.Helper()

	s, err := e.auth.Register(context.Background(), name, email, "pw1")
	require.NoError(t, err)
	return s
}

func pdf(size int) []byte {
	b := bytes.Repeat([]byte("a"), size)
	copy(b, "%PDF-1.4\n")
	return b
}

func (e *env) upload(t *testing.T, userID, fileName string, content []byte) *model.Note {
	t.Helper()

	n, err := e.svc.Upload(context.Background(), UploadInput{
		UserID:      userID,
		Title:       "Ch1",
		Description: "First chapter",
		Subject:     "Physics",
		FileName:    fileName,
		MimeType:    "application/pdf",
		Size:        int64(len(content)),
		Content:     bytes.NewReader(content),
	})
	require.NoError(t, err)
	return n
}

func TestUploadRejectsTypeBeforeBlobWrite(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")

	_, err := e.svc.Upload(context.Background(), UploadInput{
		UserID:      alice.User.ID,
		Title:       "t",
		Description: "d",
		Subject:     "s",
		FileName:    "run.exe",
		MimeType:    "application/x-msdownload",
		Size:        3,
		Content:     bytes.NewReader([]byte("MZ!")),
	})

	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, validators.ErrFileTypeUnsupported.Error(), errs.Message(err))
	assert.Zero(t, e.blobs.uploads)
}

func TestUploadMissingFile(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Upload(context.Background(), UploadInput{UserID: "u", Title: "t", Description: "d", Subject: "s"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "Please upload a file", errs.Message(err))
	assert.Zero(t, e.blobs.uploads)
}

func TestUploadMissingFields(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Upload(context.Background(), UploadInput{
		UserID:   "u",
		Title:    "  ",
		Subject:  "s",
		FileName: "a.pdf",
		MimeType: "application/pdf",
		Size:     10,
		Content:  bytes.NewReader(pdf(10)),
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "Title is required", errs.Message(err))
	assert.Zero(t, e.blobs.uploads)
}

func TestUploadTooLargeDeclared(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")

	_, err := e.svc.Upload(context.Background(), UploadInput{
		UserID:      alice.User.ID,
		Title:       "t",
		Description: "d",
		Subject:     "s",
		FileName:    "big.pdf",
		MimeType:    "application/pdf",
		Size:        validators.DefaultMaxUploadSize + 1,
		Content:     bytes.NewReader(pdf(16)),
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Zero(t, e.blobs.uploads)

	mine, err := e.svc.ListMine(context.Background(), alice.User.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestUploadTooLargeDuringTransfer(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")

	rules := validators.DefaultUploadRules()
	rules.MaxSize = 1024
	e.svc = NewNotes(e.notes, e.blobs, rules)

	// Size unknown up front
	_, err := e.svc.Upload(context.Background(), UploadInput{
		UserID:      alice.User.ID,
		Title:       "t",
		Description: "d",
		Subject:     "s",
		FileName:    "big.pdf",
		MimeType:    "application/pdf",
		Size:        -1,
		Content:     bytes.NewReader(pdf(4096)),
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "File too large", errs.Message(err))

	mine, err := e.svc.ListMine(context.Background(), alice.User.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	objects, err := e.blobs.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestUploadBlobFailureCreatesNoNote(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")
	e.blobs.failUpload = true

	_, err := e.svc.Upload(context.Background(), UploadInput{
		UserID:      alice.User.ID,
		Title:       "t",
		Description: "d",
		Subject:     "s",
		FileName:    "a.pdf",
		MimeType:    "application/pdf",
		Size:        10,
		Content:     bytes.NewReader(pdf(10)),
	})
	assert.ErrorIs(t, err, errs.ErrStorageWrite)

	mine, err := e.svc.ListMine(context.Background(), alice.User.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestUploadSniffsOctetStream(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")

	n, err := e.svc.Upload(context.Background(), UploadInput{
		UserID:      alice.User.ID,
		Title:       "t",
		Description: "d",
		Subject:     "s",
		FileName:    "doc",
		MimeType:    "application/octet-stream",
		Size:        64,
		Content:     bytes.NewReader(pdf(64)),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", n.FileType)
	assert.Equal(t, int64(64), n.FileSize)
}

func TestUploadShowsInMyNotes(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")

	content := pdf(2 << 20)
	n := e.upload(t, alice.User.ID, "ch1.pdf", content)

	assert.True(t, n.IsApproved)
	assert.Zero(t, n.Downloads)
	assert.Equal(t, alice.User.ID, n.UploadedBy)

	mine, err := e.svc.ListMine(context.Background(), alice.User.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, n.ID, mine[0].ID)
	assert.Equal(t, int64(len(content)), mine[0].FileSize)
}

func TestDownloadCountsEveryCall(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")

	content := pdf(1000)
	n := e.upload(t, alice.User.ID, "ch1.pdf", content)

	for i := 1; i <= 3; i++ {
		d, err := e.svc.Download(context.Background(), n.ID)
		require.NoError(t, err)

		got, err := io.ReadAll(d.Body)
		require.NoError(t, err)
		d.Body.Close()

		assert.Equal(t, content, got)
		assert.Equal(t, int64(len(content)), d.Size)
		assert.Equal(t, int64(i), d.Note.Downloads)
	}

	stored, err := e.notes.ByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Downloads)
}

func TestDownloadMissingNote(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Download(context.Background(), "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDownloadMissingBlobStillCounts(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")
	n := e.upload(t, alice.User.ID, "ch1.pdf", pdf(100))

	_, err := e.blobs.Store.Delete(context.Background(), n.BlobName)
	require.NoError(t, err)

	_, err = e.svc.Download(context.Background(), n.ID)
	assert.ErrorIs(t, err, errs.ErrStorageRead)

	stored, err := e.notes.ByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Downloads)
}

func TestDeleteSwallowsBlobFailure(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")
	n := e.upload(t, alice.User.ID, "ch1.pdf", pdf(100))

	e.blobs.failDelete = true
	require.NoError(t, e.admin.DeleteNote(context.Background(), n.ID))
	assert.Equal(t, 1, e.blobs.deletes)

	_, err := e.notes.ByID(context.Background(), n.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.ErrorIs(t, e.admin.DeleteNote(context.Background(), n.ID), errs.ErrNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "Alice", "alice@example.com")
	bob := e.register(t, "Bob", "bob@example.com")

	e.upload(t, alice.User.ID, "a1.pdf", pdf(100))
	e.upload(t, alice.User.ID, "a2.pdf", pdf(100))
	kept := e.upload(t, bob.User.ID, "b1.pdf", pdf(100))

	require.NoError(t, e.admin.DeleteUser(ctx, alice.User.ID))

	mine, err := e.svc.ListMine(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	public, err := e.svc.ListPublic(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, kept.ID, public[0].ID)

	objects, err := e.blobs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, objects, 1)

	assert.ErrorIs(t, e.admin.DeleteUser(ctx, alice.User.ID), errs.ErrNotFound)

	// Their token no longer authenticates
	_, err = e.auth.Authenticate(ctx, alice.Token)
	assert.ErrorIs(t, err, errs.ErrAuth)
}

func TestToggleApprovalHidesFromPublic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "Alice", "alice@example.com")
	n := e.upload(t, alice.User.ID, "ch1.pdf", pdf(100))

	got, err := e.admin.ToggleApproval(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.IsApproved)

	public, err := e.svc.ListPublic(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, public)

	mine, err := e.svc.ListMine(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	got, err = e.admin.ToggleApproval(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsApproved)
}

func TestAdminStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	st, err := e.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{}, *st)

	alice := e.register(t, "Alice", "alice@example.com")
	n := e.upload(t, alice.User.ID, "ch1.pdf", pdf(100))
	e.upload(t, alice.User.ID, "ch2.pdf", pdf(100))

	_, err = e.admin.ToggleApproval(ctx, n.ID)
	require.NoError(t, err)

	d, err := e.svc.Download(ctx, n.ID)
	require.NoError(t, err)
	d.Body.Close()

	st, err = e.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{TotalUsers: 1, TotalNotes: 2, ApprovedNotes: 1, TotalDownloads: 1}, *st)

	users, err := e.admin.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	notes, err := e.admin.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "alice@example.com", notes[0].Owner.Email)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	s, err := e.auth.Register(ctx, "Alice", " Alice@Example.com ", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "alice@example.com", s.User.Email)
	assert.False(t, s.User.IsAdmin)

	_, err = e.auth.Register(ctx, "Alice again", "alice@example.com", "pw2")
	assert.ErrorIs(t, err, errs.ErrConflict)

	logged, err := e.auth.Login(ctx, "ALICE@example.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, logged.User.ID)

	u, err := e.auth.Authenticate(ctx, logged.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, u.ID)

	_, err = e.auth.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "Invalid credentials", errs.Message(err))

	_, err = e.auth.Login(ctx, "nobody@example.com", "pw1")
	assert.Equal(t, "Invalid credentials", errs.Message(err))
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.auth.Register(ctx, "", "a@example.com", "pw")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = e.auth.Register(ctx, "A", "not-an-email", "pw")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = e.auth.Register(ctx, "A", "a@example.com", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRegisterAdminEmail(t *testing.T) {
	e := newEnv(t)

	s := e.register(t, "Boss", "boss@example.com")
	assert.True(t, s.User.IsAdmin)
}

func TestAdminLoginCreatesAccountOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.auth.AdminLogin(ctx, "root", "wrong")
	assert.Equal(t, "Invalid admin credentials", errs.Message(err))

	first, err := e.auth.AdminLogin(ctx, "root", "hunter2")
	require.NoError(t, err)
	assert.True(t, first.User.IsAdmin)
	assert.Equal(t, "root", first.User.AdminID)
	assert.Equal(t, "admin_root@system.local", first.User.Email)

	second, err := e.auth.AdminLogin(ctx, "root", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)

	n, err := e.users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRegisterRejectsSystemDomain(t *testing.T) {
	e := newEnv(t)

	_, err := e.auth.Register(context.Background(), "Mallory", "Admin_Root@System.Local", "pw1")
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "This email domain is reserved", errs.Message(err))
}

func TestAdminLoginWithTakenEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Squatter inserted below the service, as an account from before the
	// domain was reserved would be
	squatter := &model.User{Name: "Mallory", Email: "admin_root@system.local", PasswordHash: "x"}
	require.NoError(t, e.users.Create(ctx, squatter))

	s, err := e.auth.AdminLogin(ctx, "root", "hunter2")
	require.NoError(t, err)
	assert.True(t, s.User.IsAdmin)
	assert.Equal(t, "root", s.User.AdminID)
	assert.NotEqual(t, squatter.ID, s.User.ID)

	again, err := e.auth.AdminLogin(ctx, "root", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, again.User.ID)

	got, err := e.users.ByID(ctx, squatter.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAdmin)
}

func TestAdminLoginUnconfigured(t *testing.T) {
	e := newEnv(t)
	e.auth.cfg.AdminID = ""
	e.auth.cfg.AdminPassword = ""

	_, err := e.auth.AdminLogin(context.Background(), "", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	e := newEnv(t)

	_, err := e.auth.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, errs.ErrAuth)
}

func TestCleanOrphans(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "Alice", "alice@example.com")

	n := e.upload(t, alice.User.ID, "kept.pdf", pdf(100))
	orphan, err := e.blobs.Store.Upload(ctx, bytes.NewReader(pdf(10)), "orphan.pdf", "application/pdf")
	require.NoError(t, err)

	// Too young to be touched
	deleted, err := CleanOrphans(ctx, time.Now().Add(-time.Hour), e.notes, e.blobs)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = CleanOrphans(ctx, time.Now().Add(time.Hour), e.notes, e.blobs)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = e.blobs.Info(ctx, orphan.Key)
	assert.ErrorIs(t, err, errs.ErrStorageRead)

	_, err = e.blobs.Info(ctx, n.BlobName)
	assert.NoError(t, err)
}

func TestLimitedReader(t *testing.T) {
	l := &limitedReader{r: bytes.NewReader(make([]byte, 10)), max: 10}
	b, err := io.ReadAll(l)
	assert.NoError(t, err)
	assert.Len(t, b, 10)
	assert.False(t, l.exceeded)

	l = &limitedReader{r: bytes.NewReader(make([]byte, 11)), max: 10}
	_, err = io.ReadAll(l)
	assert.ErrorIs(t, err, errTooLarge)
	assert.True(t, l.exceeded)
}
