package tlsrand

import "crypto/rand"

// We need to fix randoms for tests, hence abstraction

type Rand interface {
	Read(data []byte)
}

type cryptoRand struct {
}

func (c *cryptoRand) Read(data []byte) {
	if _, err := rand.Read(data); err != nil {
		panic("failed to read crypto rand: " + err.Error())
	}
}

type fixedRand struct {
	counter byte
}

func (c *fixedRand) Read(data []byte) {
	for i := range data {
		data[i] = c.counter + byte(i)
	}
	c.counter++
}

func CryptoRand() Rand {
	return &cryptoRand{}
}

// FixedRand produces a deterministic byte sequence. Each Read starts one
// higher than the previous, so successive randoms differ but runs repeat.
func FixedRand() Rand {
	return &fixedRand{}
}
