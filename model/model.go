// Package model builds the caries classifier network
package model

import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/caries/layer/activation"
import "github.com/neurlang/caries/layer/batchnorm"
import "github.com/neurlang/caries/layer/conv2d"
import "github.com/neurlang/caries/layer/dropout"
import "github.com/neurlang/caries/layer/flatten"
import "github.com/neurlang/caries/layer/full"
import "github.com/neurlang/caries/layer/maxpool2d"
import "github.com/neurlang/caries/net/feedforward"

// Filters are the output channels of the three convolution blocks
var Filters = [3]int{32, 64, 64}

const (
	// KernelSize of every convolution
	KernelSize = 3
	// PoolSize of every max pooling window
	PoolSize = 2
	// HiddenUnits of the dense layer after flatten
	HiddenUnits = 128
	// Channels of the input image
	Channels = 3
)

// Options of the fixed topology
type Options struct {
	ImageSize   int
	DropoutRate float64
	Seed        int64
}

// New builds 3 x (conv -> batchnorm -> relu -> maxpool), flatten,
// dense relu, dropout, dense, sigmoid.
func New(opts Options) (*feedforward.FeedforwardNetwork, error) {
	if opts.ImageSize < PoolSize*PoolSize*PoolSize {
		return nil, errors.Errorf("model: image size %d too small for three pooling stages", opts.ImageSize)
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var net feedforward.FeedforwardNetwork
	net.NewInput(opts.ImageSize, opts.ImageSize, Channels)

	for _, filters := range Filters {
		conv, err := conv2d.New(filters, KernelSize, rng)
		if err != nil {
			return nil, err
		}
		if err := net.NewCombiner(conv); err != nil {
			return nil, err
		}
		if err := net.NewCombiner(batchnorm.MustNew()); err != nil {
			return nil, err
		}
		if err := net.NewCombiner(activation.MustNew(activation.Relu)); err != nil {
			return nil, err
		}
		if err := net.NewCombiner(maxpool2d.MustNew(PoolSize)); err != nil {
			return nil, err
		}
	}
	if err := net.NewCombiner(flatten.New()); err != nil {
		return nil, err
	}
	if err := net.NewCombiner(full.MustNew(HiddenUnits, rng)); err != nil {
		return nil, err
	}
	if err := net.NewCombiner(activation.MustNew(activation.Relu)); err != nil {
		return nil, err
	}
	drop, err := dropout.New(opts.DropoutRate, uint64(rng.Int63()))
	if err != nil {
		return nil, err
	}
	if err := net.NewCombiner(drop); err != nil {
		return nil, err
	}
	if err := net.NewCombiner(full.MustNew(1, rng)); err != nil {
		return nil, err
	}
	if err := net.NewCombiner(activation.MustNew(activation.Sigmoid)); err != nil {
		return nil, err
	}
	return &net, nil
}

// MustNew is New that panics
func MustNew(opts Options) *feedforward.FeedforwardNetwork {
	net, err := New(opts)
	if err != nil {
		panic(err.Error())
	}
	return net
}
