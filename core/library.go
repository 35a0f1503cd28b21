package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLoanPeriodDays     = 14
	DefaultMaxRenewals        = 2
	DefaultMaxLoansPerMember  = 10
	DefaultLateFeePerDayCents = 25
)

// Library is the tenant root. Code is globally unique and never changes once issued.
type Library struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Settings  LibrarySettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LibrarySettings are the circulation rules of one library.
type LibrarySettings struct {
	LoanPeriodDays     int   `json:"loan_period_days" yaml:"loan_period_days"`
	MaxRenewals        int   `json:"max_renewals" yaml:"max_renewals"`
	MaxLoansPerMember  int   `json:"max_loans_per_member" yaml:"max_loans_per_member"`
	LateFeePerDayCents int64 `json:"late_fee_per_day_cents" yaml:"late_fee_per_day_cents"`
}

// DefaultLibrarySettings returns the settings a new library starts with.
func DefaultLibrarySettings() LibrarySettings {
	return LibrarySettings{
		LoanPeriodDays:     DefaultLoanPeriodDays,
		MaxRenewals:        DefaultMaxRenewals,
		MaxLoansPerMember:  DefaultMaxLoansPerMember,
		LateFeePerDayCents: DefaultLateFeePerDayCents,
	}
}

// LoanPeriod returns the loan period as a duration.
func (s LibrarySettings) LoanPeriod() time.Duration {
	return time.Duration(s.LoanPeriodDays) * 24 * time.Hour
}

// Validate checks the settings for values that would make circulation impossible.
func (s LibrarySettings) Validate() error {
	if s.LoanPeriodDays <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("loan period days must be positive"))
	}

	if s.MaxRenewals < 0 {
		return errors.Join(ErrInvalidInput, errors.New("max renewals must not be negative"))
	}

	if s.MaxLoansPerMember <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("max loans per member must be positive"))
	}

	if s.LateFeePerDayCents < 0 {
		return errors.Join(ErrInvalidInput, errors.New("late fee must not be negative"))
	}

	return nil
}
