package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/suite"
)

type MigrationsTestSuite struct {
	suite.Suite
	db *sql.DB
}

func (s *MigrationsTestSuite) SetupTest() {
	db, err := sql.Open("sqlite3", filepath.Join(s.T().TempDir(), "test.db"))
	s.Require().NoError(err)
	s.db = db
}

func (s *MigrationsTestSuite) TearDownTest() {
	s.db.Close()
}

func (s *MigrationsTestSuite) TestEmbeddedMigrationsApply() {
	m := NewMigrator(s.db, Files(), nil)
	s.Require().NoError(m.MigrateUp())

	applied, err := m.GetAppliedMigrations()
	s.Require().NoError(err)
	s.True(applied["001"])
	s.True(applied["002"])

	_, err = s.db.Exec("INSERT INTO store_nodes (path, value) VALUES (?, ?)", "accounts/a1", []byte("{}"))
	s.NoError(err)
}

func (s *MigrationsTestSuite) TestMigrateUpIsIdempotent() {
	m := NewMigrator(s.db, Files(), nil)
	s.Require().NoError(m.MigrateUp())
	s.Require().NoError(m.MigrateUp())

	var count int
	s.Require().NoError(s.db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count))
	s.Equal(2, count)
}

func (s *MigrationsTestSuite) TestStatus() {
	source := fstest.MapFS{
		"001_first.sql":  {Data: []byte("CREATE TABLE first (id INTEGER);")},
		"002_second.sql": {Data: []byte("CREATE TABLE second (id INTEGER);")},
	}
	m := NewMigrator(s.db, source, nil)
	s.Require().NoError(m.Initialize())
	s.Require().NoError(m.ApplyMigration(Migration{Version: "001", Description: "first", SQL: "CREATE TABLE first (id INTEGER);"}))

	states, err := m.Status()
	s.Require().NoError(err)
	s.Require().Len(states, 2)
	s.True(states[0].Applied)
	s.False(states[1].Applied)
	s.Equal("second", states[1].Description)

	s.Require().NoError(m.MigrateUp())
	states, err = m.Status()
	s.Require().NoError(err)
	s.True(states[1].Applied)
}

func (s *MigrationsTestSuite) TestLoadMigrationsOrdersByVersion() {
	source := fstest.MapFS{
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("ignored")},
	}
	m := NewMigrator(s.db, source, nil)

	migrations, err := m.LoadMigrations()
	s.Require().NoError(err)
	s.Require().Len(migrations, 2)
	s.Equal("001", migrations[0].Version)
	s.Equal("first", migrations[0].Description)
	s.Equal("002", migrations[1].Version)
}

func (s *MigrationsTestSuite) TestInvalidFilename() {
	source := fstest.MapFS{"nounderscore.sql": {Data: []byte("SELECT 1;")}}
	_, err := NewMigrator(s.db, source, nil).LoadMigrations()
	s.Error(err)
}

func TestMigrationsSuite(t *testing.T) {
	suite.Run(t, new(MigrationsTestSuite))
}
