package controller

// Segment holds a target command for a number of frames.
type Segment struct {
	Frames int     `json:"frames"`
	Steer  float64 `json:"steer"`
	Accel  float64 `json:"accel"`
}

// Slew replays a schedule the way a keyboard driver steers: the steering
// output moves toward the target by at most Rate per frame, throttle
// follows the target directly. Past the end of the schedule both targets
// are zero, so the wheel self-centres and the car coasts.
type Slew struct {
	Rate     float64
	Schedule []Segment

	steer float64
	frame int
}

// NewSlew returns a Slew whose steering travels ratePerSecond units of
// command per second at the given frame rate.
func NewSlew(ratePerSecond float64, fps int, schedule ...Segment) *Slew {
	if fps <= 0 {
		fps = 60
	}
	return &Slew{Rate: ratePerSecond / float64(fps), Schedule: schedule}
}

// Act implements Controller. The observation is ignored.
func (s *Slew) Act([]float64) (float64, float64) {
	target := s.target()
	s.frame++
	switch {
	case s.steer < target.Steer:
		s.steer = min(s.steer+s.Rate, target.Steer)
	case s.steer > target.Steer:
		s.steer = max(s.steer-s.Rate, target.Steer)
	}
	return s.steer, target.Accel
}

// Reset rewinds the schedule and centres the wheel.
func (s *Slew) Reset() {
	s.steer = 0
	s.frame = 0
}

func (s *Slew) target() Segment {
	f := s.frame
	for _, seg := range s.Schedule {
		if f < seg.Frames {
			return seg
		}
		f -= seg.Frames
	}
	return Segment{}
}
