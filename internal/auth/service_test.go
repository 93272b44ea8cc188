package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/shopsync/internal/model"
	"github.com/hitoshi/shopsync/internal/notification"
	"github.com/hitoshi/shopsync/internal/repository"
	"github.com/hitoshi/shopsync/internal/token"
)

// --- モック定義 ---

type mockUserRepo struct {
	createFn               func(ctx context.Context, user *model.User) error
	findByIDFn             func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn          func(ctx context.Context, email string) (*model.User, error)
	findByResetTokenHashFn func(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)
	updatePasswordFn       func(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	setResetTokenFn        func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	if m.findByResetTokenHashFn != nil {
		return m.findByResetTokenHashFn(ctx, tokenHash, now)
	}
	return nil, nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, _, _, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, id, passwordHash, changedAt)
	}
	return nil
}

func (m *mockUserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	if m.setResetTokenFn != nil {
		return m.setResetTokenFn(ctx, id, tokenHash, expiresAt)
	}
	return nil
}

func (m *mockUserRepo) List(_ context.Context) ([]*model.User, error) { return nil, nil }

func (m *mockUserRepo) ListCreatedSince(_ context.Context, _ time.Time) ([]*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error { return nil }

type mockNotifier struct {
	sendFn func(ctx context.Context, user *model.User, token string) error
}

func (m *mockNotifier) SendPasswordReset(ctx context.Context, user *model.User, token string) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, user, token)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ notification.Notifier = (*mockNotifier)(nil)

// newTestService は実トークンサービスを使うServiceを生成する。
func newTestService(users *mockUserRepo) (*Service, *token.Service) {
	tokens := token.NewService("test-secret", time.Hour)
	return NewService(users, tokens, &mockNotifier{}), tokens
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}
	return string(hash)
}

// --- Signup ---

func TestSignup_IssuesVerifiableToken(t *testing.T) {
	ctx := context.Background()
	var created *model.User

	users := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc, tokens := newTestService(users)

	user, tok, err := svc.Signup(ctx, SignupInput{
		Name:            "Test User",
		Email:           "test@example.com",
		Password:        "password123",
		PasswordConfirm: "password123",
		Phone:           "08123456789",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if created == nil {
		t.Fatal("ユーザーが作成されるべき")
	}
	if created.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", created.Role, model.RoleUser)
	}
	if created.PasswordHash == "password123" {
		t.Error("パスワードは平文で保存されるべきではない")
	}

	// 発行されたトークンは作成されたユーザーIDに検証できる
	claims, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("トークンのUserID = %q, want %q", claims.UserID, user.ID)
	}
}

func TestSignup_PasswordMismatch_Fails(t *testing.T) {
	svc, _ := newTestService(&mockUserRepo{})

	_, _, err := svc.Signup(context.Background(), SignupInput{
		Email:           "test@example.com",
		Password:        "password123",
		PasswordConfirm: "different123",
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("ValidationErrorを返すべき, got %v", err)
	}
}

func TestSignup_ShortPassword_Fails(t *testing.T) {
	svc, _ := newTestService(&mockUserRepo{})

	_, _, err := svc.Signup(context.Background(), SignupInput{
		Email:           "test@example.com",
		Password:        "short",
		PasswordConfirm: "short",
	})
	if err == nil {
		t.Error("短すぎるパスワードは拒否されるべき")
	}
}

// --- Login ---

func TestLogin_WrongPasswordAndUnknownEmail_IdenticalError(t *testing.T) {
	ctx := context.Background()
	passwordHash := hashPassword(t, "correct-password")

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			if email == "known@example.com" {
				return &model.User{ID: "user-1", Email: email, PasswordHash: passwordHash}, nil
			}
			return nil, nil
		},
	}
	svc, _ := newTestService(users)

	_, _, errWrongPassword := svc.Login(ctx, "known@example.com", "wrong-password")
	_, _, errUnknownEmail := svc.Login(ctx, "unknown@example.com", "whatever")

	if errWrongPassword == nil || errUnknownEmail == nil {
		t.Fatal("どちらのログインも失敗すべき")
	}

	// ユーザー列挙を防ぐため、メッセージは完全に一致すること
	if errWrongPassword.Error() != errUnknownEmail.Error() {
		t.Errorf("エラーメッセージが一致すべき: %q vs %q",
			errWrongPassword.Error(), errUnknownEmail.Error())
	}
}

func TestLogin_Success_IssuesToken(t *testing.T) {
	ctx := context.Background()
	passwordHash := hashPassword(t, "correct-password")

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: passwordHash}, nil
		},
	}
	svc, tokens := newTestService(users)

	user, tok, err := svc.Login(ctx, "known@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	claims, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("トークンのUserID = %q, want %q", claims.UserID, user.ID)
	}
}

// --- Authenticate ---

func TestAuthenticate_RevokedByPasswordChange(t *testing.T) {
	ctx := context.Background()
	tokens := token.NewService("test-secret", time.Hour)

	user := &model.User{ID: "user-1"}
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return user, nil
		},
	}
	svc := NewService(users, tokens, &mockNotifier{})

	tok, err := tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// 発行前にパスワード変更: トークンは有効
	user.PasswordChangedAt = time.Now().Add(-time.Hour)
	if _, err := svc.Authenticate(ctx, tok); err != nil {
		t.Errorf("発行前の変更ではトークンは有効であるべき: %v", err)
	}

	// 発行後にパスワード変更: トークンは失効
	user.PasswordChangedAt = time.Now().Add(time.Hour)
	if _, err := svc.Authenticate(ctx, tok); err == nil {
		t.Error("発行後の変更でトークンは失効すべき")
	}
}

func TestAuthenticate_UserGone_Fails(t *testing.T) {
	tokens := token.NewService("test-secret", time.Hour)
	users := &mockUserRepo{} // FindByIDはnilを返す
	svc := NewService(users, tokens, &mockNotifier{})

	tok, err := tokens.Issue("deleted-user")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = svc.Authenticate(context.Background(), tok)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("存在しないユーザーのトークンはUnauthorizedを返すべき, got %v", err)
	}
}

// --- UpdatePassword ---

func TestUpdatePassword_WrongCurrentPassword_Fails(t *testing.T) {
	passwordHash := hashPassword(t, "correct-password")
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, PasswordHash: passwordHash}, nil
		},
	}
	svc, _ := newTestService(users)

	_, _, err := svc.UpdatePassword(context.Background(), "user-1", "wrong-current", "newpassword1", "newpassword1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("現在のパスワード不一致はUnauthorizedを返すべき, got %v", err)
	}
}

func TestUpdatePassword_Success_ReissuesToken(t *testing.T) {
	passwordHash := hashPassword(t, "correct-password")
	var updatedHash string

	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, PasswordHash: passwordHash}, nil
		},
		updatePasswordFn: func(ctx context.Context, id, hash string, changedAt time.Time) error {
			updatedHash = hash
			return nil
		},
	}
	svc, tokens := newTestService(users)

	_, tok, err := svc.UpdatePassword(context.Background(), "user-1", "correct-password", "newpassword1", "newpassword1")
	if err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if updatedHash == "" || updatedHash == passwordHash {
		t.Error("新しいパスワードハッシュが保存されるべき")
	}
	if _, err := tokens.Verify(tok); err != nil {
		t.Errorf("再発行されたトークンは検証可能であるべき: %v", err)
	}
}

// --- ForgotPassword / ResetPassword ---

func TestForgotPassword_UnknownEmail_NotFound(t *testing.T) {
	svc, _ := newTestService(&mockUserRepo{})

	err := svc.ForgotPassword(context.Background(), "unknown@example.com")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound {
		t.Errorf("未登録メールはNotFoundを返すべき, got %v", err)
	}
}

func TestForgotPassword_StoresHashedToken(t *testing.T) {
	var storedHash string
	var storedExpiry time.Time
	var sentToken string

	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email}, nil
		},
		setResetTokenFn: func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
			storedHash = tokenHash
			storedExpiry = expiresAt
			return nil
		},
	}
	tokens := token.NewService("test-secret", time.Hour)
	notifier := &mockNotifier{
		sendFn: func(ctx context.Context, user *model.User, token string) error {
			sentToken = token
			return nil
		},
	}
	svc := NewService(users, tokens, notifier)

	if err := svc.ForgotPassword(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}

	if sentToken == "" {
		t.Fatal("平文トークンが通知コラボレーターに渡されるべき")
	}
	if storedHash == sentToken {
		t.Error("保存されるのは平文ではなくハッシュであるべき")
	}

	// 保存されたハッシュは平文トークンのSHA-256と一致すること
	sum := sha256.Sum256([]byte(sentToken))
	if storedHash != hex.EncodeToString(sum[:]) {
		t.Error("保存されたハッシュが平文トークンのSHA-256と一致すべき")
	}

	if !storedExpiry.After(time.Now()) {
		t.Error("リセットトークンの有効期限は未来であるべき")
	}
}

func TestResetPassword_InvalidOrExpiredToken_Fails(t *testing.T) {
	// FindByResetTokenHashは期限切れ・ハッシュ不一致のどちらでもnilを返す
	svc, _ := newTestService(&mockUserRepo{})

	_, _, err := svc.ResetPassword(context.Background(), "bad-token", "newpassword1", "newpassword1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidResetToken {
		t.Errorf("InvalidResetTokenエラーを返すべき, got %v", err)
	}
}

func TestResetPassword_SingleUse(t *testing.T) {
	ctx := context.Background()
	plain := "the-reset-token"
	sum := sha256.Sum256([]byte(plain))
	validHash := hex.EncodeToString(sum[:])

	// 1回目は一致、UpdatePasswordでトークンがクリアされ2回目はnil
	used := false
	users := &mockUserRepo{
		findByResetTokenHashFn: func(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
			if !used && tokenHash == validHash {
				return &model.User{ID: "user-1"}, nil
			}
			return nil, nil
		},
		updatePasswordFn: func(ctx context.Context, id, hash string, changedAt time.Time) error {
			used = true
			return nil
		},
	}
	svc, _ := newTestService(users)

	if _, _, err := svc.ResetPassword(ctx, plain, "newpassword1", "newpassword1"); err != nil {
		t.Fatalf("1回目のResetPassword() error = %v", err)
	}

	_, _, err := svc.ResetPassword(ctx, plain, "anotherpass1", "anotherpass1")
	if err == nil {
		t.Error("使用済みトークンの再利用は失敗すべき")
	}
}
