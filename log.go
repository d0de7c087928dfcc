package facecorpus

import "github.com/sirupsen/logrus"

var log = logrus.StandardLogger()

// SetLogger replaces the logger used by the package. It should be called before any processing starts.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}
