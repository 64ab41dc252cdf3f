package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hzhu212/data-monitor/model"
)

func TestDsnForIncludesCharset(t *testing.T) {
	ds := &model.DatasourceConfig{Name: "ds1", Host: "db.internal", Port: 5432, User: "u", Password: "p", Database: "d", Charset: "utf8"}
	dsn := dsnFor(ds)
	assert.Equal(t, "postgres://u:p@db.internal:5432/d?client_encoding=utf8", dsn)
}

func TestDsnForWithoutCharset(t *testing.T) {
	ds := &model.DatasourceConfig{Name: "ds1", Host: "db.internal", Port: 5432, User: "u", Password: "p", Database: "d"}
	dsn := dsnFor(ds)
	assert.Equal(t, "postgres://u:p@db.internal:5432/d", dsn)
}

func TestPoolRegistryCachesByName(t *testing.T) {
	ds := &model.DatasourceConfig{Name: "ds1", Host: "localhost", Port: 5432, User: "u", Password: "p", Database: "d"}
	p := NewPoolRegistry(5)
	defer p.Close()

	db1, err := p.Get(ds)
	assert.NoError(t, err)
	db2, err := p.Get(ds)
	assert.NoError(t, err)
	assert.Same(t, db1, db2)
}

func TestPoolRegistryDefaultsMaxConnections(t *testing.T) {
	p := NewPoolRegistry(0)
	assert.Equal(t, 10, p.maxConnections)
}
