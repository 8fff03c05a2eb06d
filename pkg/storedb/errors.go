package storedb

import "errors"

var (
	ErrCreateDir = errors.New("storedb: create database directory")
	ErrOpenDB    = errors.New("storedb: open database")
	ErrMigrate   = errors.New("storedb: apply migration")
)
