package app

import (
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/security"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// SecurityReport scores the unlocked vault's passwords, expiry dates and
// required fields. Item ids are included only when includeIDs is set.
func (a *App) SecurityReport(includeIDs bool, expiryDays int) (*security.SecurityScore, error) {
	a.Touch()
	if a.Vault.State() != vault.StateReady {
		return nil, vault.ErrLocked
	}
	calc := security.NewCalculator(a.Categories)
	if expiryDays > 0 {
		calc.WithExpiryDays(expiryDays)
	}
	return calc.CalculateScore(a.Vault.Items(), includeIDs)
}

// DuplicatePasswords groups items that reuse a password or token. Item ids
// are always included since the caller is the vault owner.
func (a *App) DuplicatePasswords() ([]security.DuplicateGroup, error) {
	a.Touch()
	if a.Vault.State() != vault.StateReady {
		return nil, vault.ErrLocked
	}
	return security.NewCalculator(a.Categories).FindDuplicates(a.Vault.Items(), true, 0)
}

// WeakPasswords lists the password and token fields that are too short.
func (a *App) WeakPasswords() ([]security.SecurityIssue, error) {
	a.Touch()
	if a.Vault.State() != vault.StateReady {
		return nil, vault.ErrLocked
	}
	return security.NewCalculator(a.Categories).FindWeakPasswords(a.Vault.Items(), true, 0), nil
}
