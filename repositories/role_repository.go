package repositories

import (
	"errors"

	"permledger/models"

	"gorm.io/gorm"
)

// RoleRepository defines the role registry's database operations.
type RoleRepository interface {
	Exists(principal models.Principal, role models.Role) (bool, error)
	Create(assignment *models.RoleAssignment) error
	Delete(principal models.Principal, role models.Role) error
}

type roleRepository struct {
	db *gorm.DB
}

// Exists reports whether the (principal, role) pair is present
func (r *roleRepository) Exists(principal models.Principal, role models.Role) (bool, error) {
	var assignment models.RoleAssignment
	result := r.db.Where("principal = ? AND role = ?", principal, role).First(&assignment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, result.Error
	}
	return true, nil
}

// Create inserts a role assignment
func (r *roleRepository) Create(assignment *models.RoleAssignment) error {
	return r.db.Create(assignment).Error
}

// Delete removes a role assignment
func (r *roleRepository) Delete(principal models.Principal, role models.Role) error {
	result := r.db.Where("principal = ? AND role = ?", principal, role).Delete(&models.RoleAssignment{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
