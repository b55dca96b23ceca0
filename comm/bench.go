package comm

import (
	"errors"
	"time"
)

const pingTag = 9001

// PingPong bounces payload between ranks 0 and 1 of c repeat times and
// returns the mean round trip as seen by rank 0. Other ranks return at once.
func PingPong(c Communicator, payload []byte, repeat int) (time.Duration, error) {
	if c.Size() < 2 {
		return 0, errors.New("ping-pong needs at least two ranks")
	}
	if repeat < 1 {
		repeat = 1
	}

	switch c.Rank() {
	case 0:
		start := time.Now()
		for i := 0; i < repeat; i++ {
			if err := c.Send(payload, 1, pingTag); err != nil {
				return 0, err
			}
			if _, err := c.Recv(1, pingTag); err != nil {
				return 0, err
			}
		}
		return time.Since(start) / time.Duration(repeat), nil
	case 1:
		for i := 0; i < repeat; i++ {
			msg, err := c.Recv(0, pingTag)
			if err != nil {
				return 0, err
			}
			if err := c.Send(msg, 0, pingTag); err != nil {
				return 0, err
			}
		}
	}
	return 0, nil
}
