package sdk

import (
	"context"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/jingkaihe/matchlock-go/internal/errx"
)

// ResolveImageConfig fetches the OCI config for an image reference and
// returns it as CreateOptions.ImageConfig metadata. The supervisor resolves
// image config itself during create; this helper is for callers that want
// to inspect or override USER/ENTRYPOINT/CMD/WORKDIR/ENV before launching.
func ResolveImageConfig(ctx context.Context, imageRef string) (*ImageConfig, error) {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return nil, errx.Wrap(ErrParseImageRef, err)
	}

	img, err := remote.Image(ref,
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
		remote.WithContext(ctx),
	)
	if err != nil {
		return nil, errx.Wrap(ErrFetchImage, err)
	}

	cf, err := img.ConfigFile()
	if err != nil {
		return nil, errx.Wrap(ErrImageConfigFile, err)
	}
	c := cf.Config

	cfg := &ImageConfig{
		User:       c.User,
		WorkingDir: c.WorkingDir,
		Entrypoint: c.Entrypoint,
		Cmd:        c.Cmd,
	}

	if len(c.Env) > 0 {
		cfg.Env = make(map[string]string, len(c.Env))
		for _, e := range c.Env {
			if k, v, ok := strings.Cut(e, "="); ok {
				cfg.Env[k] = v
			}
		}
	}

	return cfg, nil
}
