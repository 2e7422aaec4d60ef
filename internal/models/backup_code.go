package models

import "time"

// BackupCodeBatchSize is the number of recovery codes issued per enrollment.
const BackupCodeBatchSize = 10

type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TwoFactorSetup is returned once from enrollment. None of it can be read back later.
type TwoFactorSetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCode          string   `json:"qr_code"`
	BackupCodes     []string `json:"backup_codes"`
}

type TwoFactorStatus struct {
	State                TwoFactorState `json:"state"`
	ConfirmedAt          *time.Time     `json:"confirmed_at,omitempty"`
	RemainingBackupCodes int            `json:"remaining_backup_codes"`
}
