package evacuation

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "evacuation")
