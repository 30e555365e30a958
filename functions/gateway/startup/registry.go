package startup

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/zoworld/eventsync/functions/gateway/constants"
)

// Task is one step run before the gateway starts serving. Optional tasks log their failure
// and let startup continue.
type Task struct {
	Name     string
	Run      func() error
	Optional bool
}

var Registry []Task

func Register(name string, run func() error) {
	Registry = append(Registry, Task{Name: name, Run: run})
}

// RunAll runs the registered tasks in order and stops at the first required failure.
func RunAll() error {
	return runTasks(Registry)
}

func runTasks(tasks []Task) error {
	for _, task := range tasks {
		started := time.Now()
		if err := task.Run(); err != nil {
			if task.Optional {
				log.Printf("WARN: startup task %q failed, continuing: %v", task.Name, err)
				continue
			}
			return fmt.Errorf("startup task %q failed: %w", task.Name, err)
		}
		log.Printf("startup task %q done in %s", task.Name, time.Since(started).Round(time.Millisecond))
	}
	return nil
}

func init() {
	if os.Getenv("GO_ENV") == constants.GO_TEST_ENV {
		return
	}
	if os.Getenv("SKIP_MIGRATIONS") == "true" {
		log.Println("SKIP_MIGRATIONS=true, canonical store schema is assumed to exist")
		return
	}
	Register("Database Migrations", InitMigrations)
}
