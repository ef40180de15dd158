package procutil

import (
	"os"
	"time"
)

// Terminate asks p to exit gracefully and kills it when exited has not been
// closed within grace. exited must be closed by whoever waits on the process.
// It reports whether the process had to be killed.
func Terminate(p *os.Process, exited <-chan struct{}, grace time.Duration) (killed bool, err error) {
	select {
	case <-exited:
		return false, nil
	default:
	}

	if err := GracefulTerminate(p); err != nil {
		// Already gone between the check above and the signal.
		select {
		case <-exited:
			return false, nil
		default:
		}
		return false, err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
		return false, nil
	case <-timer.C:
	}

	if err := p.Kill(); err != nil {
		select {
		case <-exited:
			return true, nil
		default:
			return true, err
		}
	}
	<-exited
	return true, nil
}
