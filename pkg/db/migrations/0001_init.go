package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email     string    `gorm:"type:text;not null;uniqueIndex:idx_users_email_field"`
	Username  string    `gorm:"type:text;not null"`
	Password  string    `gorm:"type:text;not null"`
	Role      string    `gorm:"type:text;not null;default:'viewer'"`
	FieldID   string    `gorm:"type:text;not null;uniqueIndex:idx_users_email_field"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Trunkline struct {
	ID        string    `gorm:"type:text;primaryKey"`
	FieldID   string    `gorm:"type:text;not null;index"`
	Name      string    `gorm:"type:text;not null"`
	LengthKM  float64   `gorm:"type:double precision"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Spot struct {
	ID        string    `gorm:"type:text;primaryKey"`
	TlineID   string    `gorm:"type:text;not null;index"`
	Name      string    `gorm:"type:text;not null"`
	Sort      int       `gorm:"type:integer;not null;default:0"`
	Latitude  float64   `gorm:"type:double precision"`
	Longitude float64   `gorm:"type:double precision"`
	Active    bool      `gorm:"type:boolean;not null;default:true"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Line struct {
	ID      int64  `gorm:"type:bigserial;primaryKey"`
	LineID  string `gorm:"type:text;uniqueIndex;not null"`
	TlineID string `gorm:"type:text;not null;index"`
	Name    string `gorm:"type:text;not null"`
	Active  bool   `gorm:"type:boolean;not null;default:true"`
}

type LineNode struct {
	ID        int64   `gorm:"type:bigserial;primaryKey"`
	LineID    string  `gorm:"type:text;not null;index"`
	Latitude  float64 `gorm:"type:double precision;not null"`
	Longitude float64 `gorm:"type:double precision;not null"`
}

// Pressure readings are stored per field in identically shaped tables. The
// table is selected at query time through a closed field lookup, never from
// request input.
type PressureJBI struct {
	ID        int64     `gorm:"type:bigserial;primaryKey"`
	SpotID    string    `gorm:"type:text;not null;index:idx_pressure_jbi_spot_ts"`
	Timestamp time.Time `gorm:"type:timestamptz;not null;index:idx_pressure_jbi_spot_ts"`
	PSI       float64   `gorm:"type:double precision;not null"`
}

func (PressureJBI) TableName() string { return "pressure_jbi" }

type PressureRTU struct {
	ID        int64     `gorm:"type:bigserial;primaryKey"`
	SpotID    string    `gorm:"type:text;not null;index:idx_pressure_rtu_spot_ts"`
	Timestamp time.Time `gorm:"type:timestamptz;not null;index:idx_pressure_rtu_spot_ts"`
	PSI       float64   `gorm:"type:double precision;not null"`
}

func (PressureRTU) TableName() string { return "pressure_rtu" }

type Model struct {
	ID              string    `gorm:"type:text;primaryKey"`
	TlineID         string    `gorm:"type:text;not null;index"`
	Name            string    `gorm:"type:text;not null"`
	Parameters      int       `gorm:"type:integer;not null"`
	Filename        string    `gorm:"type:text;not null"`
	Output          string    `gorm:"type:text;not null"`
	Infix           string    `gorm:"type:text;not null"`
	TrainingFeature *string   `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type PredictionSession struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TlineID    string     `gorm:"type:text;not null"`
	ModelID    string     `gorm:"type:text;not null;index"`
	Token      string     `gorm:"type:text;uniqueIndex;not null"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	ConsumedAt *time.Time `gorm:"type:timestamptz"`
}

type PredictionEvent struct {
	ID        int64             `gorm:"type:bigserial;primaryKey"`
	Kind      string            `gorm:"type:text;not null;index"`
	Token     string            `gorm:"type:text;index"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	RawOutput []byte            `gorm:"type:bytea"`
	CreatedAt time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(
		&User{},
		&Trunkline{},
		&Spot{},
		&Line{},
		&LineNode{},
		&PressureJBI{},
		&PressureRTU{},
		&Model{},
		&PredictionSession{},
		&PredictionEvent{},
	)
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&PredictionEvent{},
		&PredictionSession{},
		&Model{},
		&PressureRTU{},
		&PressureJBI{},
		&LineNode{},
		&Line{},
		&Spot{},
		&Trunkline{},
		&User{},
	)
}
