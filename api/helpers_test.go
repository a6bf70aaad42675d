package api

import (
	"context"

	"github.com/MrEthical07/keygate/directory"
)

type lookupOnly struct{}

func (lookupOnly) LookupByDigest(context.Context, string) (directory.Client, error) {
	return directory.Client{}, directory.ErrNotFound
}
