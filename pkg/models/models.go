// Package models defines the persisted rows shared by the store, the
// asset tree mutator and the document lifecycle manager.
//
// Assets and scenes keep numeric ids because the editor wire protocol
// addresses documents by those numbers; projects, branches and users are
// uuid-keyed (see typed_ids.go).
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JSONMap is a free-form JSON object column. PostgreSQL stores it as
// JSONB; in memory it is a plain map.
type JSONMap map[string]any

// Value implements the driver.Valuer interface for database storage
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, j)
}

// Clone returns a deep copy made through a JSON round trip, so numeric
// values normalize to float64 exactly as they would over the wire.
func (j JSONMap) Clone() JSONMap {
	if j == nil {
		return nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return JSONMap{}
	}
	var out JSONMap
	if err := json.Unmarshal(data, &out); err != nil {
		return JSONMap{}
	}
	return out
}

// IDList is an ordered list of asset ids, used for materialized ancestor
// paths. Prefix comparisons are exact and ordered.
type IDList []int64

// HasPrefix reports whether l begins with exactly the elements of prefix.
func (l IDList) HasPrefix(prefix IDList) bool {
	if len(l) < len(prefix) {
		return false
	}
	for i := range prefix {
		if l[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Last returns the final element, or nil for an empty list.
func (l IDList) Last() *int64 {
	if len(l) == 0 {
		return nil
	}
	v := l[len(l)-1]
	return &v
}

// ToAny converts the list to the []any shape document payloads use.
func (l IDList) ToAny() []any {
	out := make([]any, len(l))
	for i, id := range l {
		out[i] = id
	}
	return out
}

// IDListFromAny coerces a JSON-decoded value into an IDList. Non-array
// values and non-numeric elements yield an empty list, matching the
// lenient reads the wire protocol requires.
func IDListFromAny(v any) IDList {
	arr, ok := v.([]any)
	if !ok {
		return IDList{}
	}
	out := make(IDList, 0, len(arr))
	for _, e := range arr {
		if id, ok := ToInt64(e); ok {
			out = append(out, id)
		}
	}
	return out
}

// ToInt64 coerces the numeric shapes JSON decoding produces.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// FileInfo is the nullable blob descriptor attached to an asset row.
type FileInfo struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	Mime        string `json:"mime"`
	URL         string `json:"url"`
	StoragePath string `json:"storagePath"`
}

// Value implements the driver.Valuer interface for database storage
func (f FileInfo) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements the sql.Scanner interface for database retrieval
func (f *FileInfo) Scan(value any) error {
	if value == nil {
		*f = FileInfo{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, f)
}

func (FileInfo) GormDataType() string { return "jsonb" }

// Asset is a persisted asset row. Data carries the free-form JSON the
// editor reads, including the materialized ancestor path and parentId.
type Asset struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID     ProjectID `gorm:"type:uuid;index:idx_assets_scope" json:"project_id"`
	BranchID      BranchID  `gorm:"type:uuid;index:idx_assets_scope" json:"branch_id"`
	OwnerID       UserID    `gorm:"type:uuid" json:"owner_id"`
	Name          string    `gorm:"not null" json:"name"`
	Type          string    `gorm:"not null" json:"type"`
	Data          JSONMap   `gorm:"type:jsonb" json:"data"`
	File          *FileInfo `gorm:"type:jsonb" json:"file,omitempty"`
	SourceAssetID *int64    `json:"source_asset_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Path returns the materialized ancestor chain from the asset's data.
func (a *Asset) Path() IDList {
	if a.Data == nil {
		return IDList{}
	}
	return IDListFromAny(a.Data["path"])
}

// SetPath rewrites the materialized path and the derived parentId. The
// parent pointer is always the last path element, or nil at the root.
func (a *Asset) SetPath(path IDList) {
	if a.Data == nil {
		a.Data = JSONMap{}
	}
	a.Data["path"] = path.ToAny()
	if last := path.Last(); last != nil {
		a.Data["parentId"] = *last
	} else {
		a.Data["parentId"] = nil
	}
}

// ParentID returns the parent pointer derived from the path.
func (a *Asset) ParentID() *int64 {
	return a.Path().Last()
}

// IsFolder reports whether delete operations expand to descendants.
func (a *Asset) IsFolder() bool { return a.Type == "folder" }

// Scene is a persisted scene row. The live entity tree and settings are
// owned by the document backend once created; the row carries identity
// and scope only.
type Scene struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UniqueID  string    `gorm:"uniqueIndex" json:"unique_id"`
	ProjectID ProjectID `gorm:"type:uuid;index" json:"project_id"`
	BranchID  BranchID  `gorm:"type:uuid" json:"branch_id"`
	OwnerID   UserID    `gorm:"type:uuid" json:"owner_id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AfterCreate hook to derive a unique id from the assigned row id
func (s *Scene) AfterCreate(tx *gorm.DB) error {
	if s.UniqueID != "" {
		return nil
	}
	s.UniqueID = fmt.Sprintf("%d", s.ID)
	return tx.Model(s).Update("unique_id", s.UniqueID).Error
}

// Project is the owning container for branches, scenes and assets.
type Project struct {
	ID        ProjectID `gorm:"type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	OwnerID   UserID    `gorm:"type:uuid;not null" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsZero() {
		p.ID = NewProjectID()
	}
	return nil
}

// Branch scopes assets and scenes within a project.
type Branch struct {
	ID        BranchID  `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID ProjectID `gorm:"type:uuid;not null;index" json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate hook to generate ID if not set
func (b *Branch) BeforeCreate(tx *gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewBranchID()
	}
	return nil
}
