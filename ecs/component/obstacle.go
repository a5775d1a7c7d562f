package component

// Obstacle marks a static or scripted entity that navigating entities treat
// as a disc of Radius. Obstacles have no navigation component and fall in
// CategoryObstacle.
type Obstacle struct {
	Radius float64 `yaml:"radius"`
}
