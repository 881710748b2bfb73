package storage

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "storage")
