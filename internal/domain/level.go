package domain

import "fmt"

// LevelID identifies a challenge level. Valid ids are 0 through MaxLevelID.
type LevelID int

// MaxLevelID is the highest level id shipped with the default catalog.
const MaxLevelID LevelID = 5

// Level is one challenge stage.
type Level struct {
	ID          LevelID `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description" yaml:"description"`
	Image       string  `json:"image" yaml:"image"`
}

// Valid reports whether id falls inside the supported range.
func (id LevelID) Valid() bool {
	return id >= 0 && id <= MaxLevelID
}

func (id LevelID) String() string {
	return fmt.Sprintf("level-%d", int(id))
}
