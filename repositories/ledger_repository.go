package repositories

import (
	"permledger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository defines the permission ledger's database operations.
// Lookups that find nothing return gorm.ErrRecordNotFound.
type LedgerRepository interface {
	Settings() (*models.LedgerSettings, error)
	SaveSettings(settings *models.LedgerSettings) error

	FindPermission(id uint64) (*models.Permission, error)
	CreatePermission(permission *models.Permission) error
	UpdatePermission(id uint64, fields map[string]interface{}) error
	FindByUser(user models.Principal, page int, pageSize int) ([]models.Permission, int64, error)

	FindIndex(user, authority models.Principal) (*models.PermissionIndex, error)
	CreateIndex(index *models.PermissionIndex) error
	DeleteIndex(user, authority models.Principal) error

	FindUpdate(permissionID uint64) (*models.PermissionUpdate, error)
	SaveUpdate(update *models.PermissionUpdate) error
}

type ledgerRepository struct {
	db *gorm.DB
}

// Settings loads the singleton settings row
func (r *ledgerRepository) Settings() (*models.LedgerSettings, error) {
	var settings models.LedgerSettings
	result := r.db.Where("id = ?", models.SettingsRowID).First(&settings)
	if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// SaveSettings writes every field of the settings row
func (r *ledgerRepository) SaveSettings(settings *models.LedgerSettings) error {
	settings.ID = models.SettingsRowID
	return r.db.Save(settings).Error
}

// FindPermission finds a permission by ID
func (r *ledgerRepository) FindPermission(id uint64) (*models.Permission, error) {
	var permission models.Permission
	result := r.db.Where("id = ?", id).First(&permission)
	if result.Error != nil {
		return nil, result.Error
	}
	return &permission, nil
}

// CreatePermission inserts a permission with its ledger-assigned ID
func (r *ledgerRepository) CreatePermission(permission *models.Permission) error {
	return r.db.Create(permission).Error
}

// bitsColumns are the permission columns stored through the uint64bits
// serializer. Map updates skip serializers, so they are converted here.
var bitsColumns = []string{"crisis_id", "expiry"}

// UpdatePermission overwrites the given columns of one permission. Zero
// values and nils in fields are written as-is. Callers check existence first.
func (r *ledgerRepository) UpdatePermission(id uint64, fields map[string]interface{}) error {
	for _, column := range bitsColumns {
		if v, ok := fields[column]; ok {
			fields[column] = models.Uint64Bits(v)
		}
	}
	return r.db.Model(&models.Permission{}).Where("id = ?", id).Updates(fields).Error
}

// FindByUser pages through the permissions a user has issued, oldest first
func (r *ledgerRepository) FindByUser(user models.Principal, page int, pageSize int) ([]models.Permission, int64, error) {
	offset := (page - 1) * pageSize
	var permissions []models.Permission
	var total int64

	query := r.db.Model(&models.Permission{}).Where("user_principal = ?", user)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Order("id").Offset(offset).Limit(pageSize).Find(&permissions)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return permissions, total, nil
}

// FindIndex resolves the index entry of a (user, authority) pair
func (r *ledgerRepository) FindIndex(user, authority models.Principal) (*models.PermissionIndex, error) {
	var index models.PermissionIndex
	result := r.db.Where("user_principal = ? AND authority_principal = ?", user, authority).First(&index)
	if result.Error != nil {
		return nil, result.Error
	}
	return &index, nil
}

// CreateIndex inserts an index entry; a second entry for the same pair
// violates the primary key
func (r *ledgerRepository) CreateIndex(index *models.PermissionIndex) error {
	return r.db.Create(index).Error
}

// DeleteIndex removes the index entry of a pair
func (r *ledgerRepository) DeleteIndex(user, authority models.Principal) error {
	result := r.db.Where("user_principal = ? AND authority_principal = ?", user, authority).Delete(&models.PermissionIndex{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindUpdate loads the last update applied to a permission
func (r *ledgerRepository) FindUpdate(permissionID uint64) (*models.PermissionUpdate, error) {
	var update models.PermissionUpdate
	result := r.db.Where("permission_id = ?", permissionID).First(&update)
	if result.Error != nil {
		return nil, result.Error
	}
	return &update, nil
}

// SaveUpdate replaces the update slot of a permission. An upsert is used
// because permission 0 has a zero primary key, which Save treats as new.
func (r *ledgerRepository) SaveUpdate(update *models.PermissionUpdate) error {
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(update).Error
}
