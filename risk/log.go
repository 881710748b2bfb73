package risk

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "risk")
