package store

import "github.com/example/missing-persons/internal/logging"

var logger = logging.Component("store")
