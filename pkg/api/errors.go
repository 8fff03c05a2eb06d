package api

import "errors"

var (
	ErrAddHostSpecFormat = errors.New("invalid add-host spec")
	ErrAddHostHost       = errors.New("invalid add-host host")
	ErrAddHostIP         = errors.New("invalid add-host ip")
	ErrPortForwardSpec   = errors.New("invalid port forward spec")
	ErrPortForwardPort   = errors.New("invalid port forward port")
	ErrVolumeMountSpec   = errors.New("invalid volume mount")
)
