package handlers

// Request DTOs. Tags serve both JSON bodies and form posts.

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
}

type RegisterRequest struct {
	Name                 string `json:"name" validate:"required,min=2,max=100"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

// TwoFactorCodeRequest carries a 6-digit TOTP code.
type TwoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// BackupCodeRequest carries a recovery code, normalized before validation.
type BackupCodeRequest struct {
	Code string `json:"code" validate:"required,backupcode"`
}

// Page component names
const (
	PageLogin              = "auth/Login"
	PageRegister           = "auth/Register"
	PageTwoFactorChallenge = "auth/TwoFactorChallenge"
	PageDashboard          = "dashboard/Index"
	PageTwoFactorSettings  = "settings/TwoFactor"
	PageTwoFactorSetup     = "settings/TwoFactorSetup"
	PageAdmin              = "admin/Index"
)

// User-facing messages shared by several handlers
const (
	msgInvalidCredentials = "These credentials do not match our records."
	msgInvalidCode        = "Invalid verification code"
	msgInvalidOAuthState  = "Invalid OAuth state"
	msgOAuthFailed        = "Unable to sign in with Google. Please try again."
	msgTryAgain           = "Something went wrong. Please try again."
)
