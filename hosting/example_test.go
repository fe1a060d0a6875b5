package hosting_test

import (
	"context"
	"fmt"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
)

type greeter struct {
	Name   string `di:"greeting"`
	cancel context.CancelFunc
}

func (g *greeter) Start(ctx context.Context) error {
	fmt.Println("hello,", g.Name)
	g.cancel()
	<-ctx.Done()
	return nil
}

func (g *greeter) Stop(context.Context) error {
	fmt.Println("bye,", g.Name)
	return nil
}

func Example() {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"container": map[string]any{
				"name":             "app",
				"log_level":        "none",
				"default_lifetime": "singleton",
			},
		}).
		Build()
	if err != nil {
		panic(err)
	}
	opts, err := di.OptionsFromConfig(cfg, "container")
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := di.New(opts...)
	_ = di.RegisterInstance(c, "world", di.WithName("greeting"))
	_ = di.RegisterFactory[hosting.HostedService](c, func(c *di.Container) (hosting.HostedService, error) {
		g := &greeter{cancel: cancel}
		return g, di.Inject(c, g)
	})

	if err := hosting.NewHost(c).Run(ctx); err != nil {
		fmt.Println(err)
	}
	// Output:
	// hello, world
	// bye, world
}
