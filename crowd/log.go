package crowd

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "crowd")
