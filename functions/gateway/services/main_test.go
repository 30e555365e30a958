package services

import (
	"log"
	"os"
	"testing"

	"github.com/zoworld/eventsync/functions/gateway/constants"
)

func TestMain(m *testing.M) {
	log.Println("Running TestMain: Setup up for 'services' package")
	os.Setenv("GO_ENV", constants.GO_TEST_ENV)

	exitCode := m.Run()

	log.Println("Tests have completed. Doing tear down.")
	os.Exit(exitCode)
}
