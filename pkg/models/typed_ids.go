package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ProjectID is a typed ID for projects
type ProjectID struct {
	uuid uuid.UUID
}

func NewProjectID() ProjectID {
	return ProjectID{uuid: uuid.New()}
}

func ParseProjectID(s string) (ProjectID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ProjectID{}, fmt.Errorf("invalid project ID: %w", err)
	}
	return ProjectID{uuid: id}, nil
}

func (p ProjectID) UUID() uuid.UUID { return p.uuid }
func (p ProjectID) String() string  { return p.uuid.String() }
func (p ProjectID) IsZero() bool    { return p.uuid == uuid.Nil }

func (p ProjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.uuid.String())
}

func (p *ProjectID) UnmarshalJSON(data []byte) error {
	return unmarshalJSONID(data, &p.uuid)
}

func (p ProjectID) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return p.uuid.String(), nil
}

func (p *ProjectID) Scan(value any) error {
	return scanUUID(value, &p.uuid)
}

func (ProjectID) GormDataType() string { return "uuid" }

// BranchID is a typed ID for branches
type BranchID struct {
	uuid uuid.UUID
}

func NewBranchID() BranchID {
	return BranchID{uuid: uuid.New()}
}

func ParseBranchID(s string) (BranchID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return BranchID{}, fmt.Errorf("invalid branch ID: %w", err)
	}
	return BranchID{uuid: id}, nil
}

func (b BranchID) UUID() uuid.UUID { return b.uuid }
func (b BranchID) String() string  { return b.uuid.String() }
func (b BranchID) IsZero() bool    { return b.uuid == uuid.Nil }

func (b BranchID) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.uuid.String())
}

func (b *BranchID) UnmarshalJSON(data []byte) error {
	return unmarshalJSONID(data, &b.uuid)
}

func (b BranchID) Value() (driver.Value, error) {
	if b.IsZero() {
		return nil, nil
	}
	return b.uuid.String(), nil
}

func (b *BranchID) Scan(value any) error {
	return scanUUID(value, &b.uuid)
}

func (BranchID) GormDataType() string { return "uuid" }

// UserID is a typed ID for users
type UserID struct {
	uuid uuid.UUID
}

func NewUserID() UserID {
	return UserID{uuid: uuid.New()}
}

func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user ID: %w", err)
	}
	return UserID{uuid: id}, nil
}

func (u UserID) UUID() uuid.UUID { return u.uuid }
func (u UserID) String() string  { return u.uuid.String() }
func (u UserID) IsZero() bool    { return u.uuid == uuid.Nil }

func (u UserID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.uuid.String())
}

func (u *UserID) UnmarshalJSON(data []byte) error {
	return unmarshalJSONID(data, &u.uuid)
}

func (u UserID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.uuid.String(), nil
}

func (u *UserID) Scan(value any) error {
	return scanUUID(value, &u.uuid)
}

func (UserID) GormDataType() string { return "uuid" }

func unmarshalJSONID(data []byte, out *uuid.UUID) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*out = id
	return nil
}

func scanUUID(value any, out *uuid.UUID) error {
	if value == nil {
		*out = uuid.Nil
		return nil
	}
	switch v := value.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*out = id
	case []byte:
		id, err := uuid.Parse(string(v))
		if err != nil {
			return err
		}
		*out = id
	default:
		return fmt.Errorf("cannot scan %T into uuid", value)
	}
	return nil
}
