package vstream

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VennDev/VOsaka/vosaka"
)

func TestByteStream_NextYieldsChunksThenEOF(t *testing.T) {
	s := vosaka.NewScheduler()
	bs := New(bytes.NewBufferString("hello"), 2)

	var chunks [][]byte
	body := vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		for {
			v, err := y.Await(bs.Next())
			if errors.Is(err, ErrEOF) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, v.([]byte))
		}
	})

	handle, err := s.Await(body)
	require.NoError(t, err)
	result, err := handle.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, result.Error())

	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	require.Equal(t, "hello", string(out))
}

func TestByteStream_ReadAllDrainsToCompletion(t *testing.T) {
	s := vosaka.NewScheduler()
	bs := New(bytes.NewBufferString("the quick brown fox"), 3)

	handle, err := s.Await(bs.ReadAll())
	require.NoError(t, err)
	result, err := handle.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, result.Ok())
	require.Equal(t, "the quick brown fox", string(result.Value.([]byte)))
}

func TestByteStream_DefaultChunkSize(t *testing.T) {
	bs := New(bytes.NewBufferString("x"), 0)
	require.Equal(t, 4096, bs.chunkSize)
}
