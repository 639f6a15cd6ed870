// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

// Package main provides a small command-line front end to a Cytomine
// server: connectivity checks, identity lookup, image upload, and
// annotation crop dumps.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	yaml "gopkg.in/yaml.v2"

	"github.com/cytomine/go-cytomine/cytomine"
)

type config struct {
	Host       string `yaml:"host"`
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`
	UploadHost string `yaml:"upload_host"`
	LogLevel   string `yaml:"log_level"`
}

func loadConfigYaml(filename string) (config, error) {
	var result config
	bytes, err := os.ReadFile(filename)
	if err == nil {
		err = yaml.Unmarshal(bytes, &result)
	}
	return result, err
}

var client *cytomine.Client

func connect(c *cli.Context) error {
	cfg := config{LogLevel: "info"}
	if path := c.GlobalString("config"); path != "" {
		loaded, err := loadConfigYaml(path)
		if err != nil {
			return fmt.Errorf("could not load YAML configuration: %w", err)
		}
		cfg = loaded
	}
	if v := c.GlobalString("host"); v != "" {
		cfg.Host = v
	}
	if v := c.GlobalString("public-key"); v != "" {
		cfg.PublicKey = v
	}
	if v := c.GlobalString("private-key"); v != "" {
		cfg.PrivateKey = v
	}
	if v := c.GlobalString("upload-host"); v != "" {
		cfg.UploadHost = v
	}
	if v := c.GlobalString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	opts := []cytomine.Option{cytomine.WithLogLevel(level)}
	if cfg.UploadHost != "" {
		opts = append(opts, cytomine.WithUploadHost(cfg.UploadHost))
	}
	if c.GlobalBool("cache") {
		opts = append(opts, cytomine.WithCache())
	}

	client, err = cytomine.Connect(cfg.Host, cfg.PublicKey, cfg.PrivateKey, opts...)
	return err
}

var ping = cli.Command{
	Name:  "ping",
	Usage: "check that the server answers",
	Action: func(c *cli.Context) error {
		if !client.IsAlive() {
			return cli.NewExitError("server is not alive", 1)
		}
		fmt.Println("alive")
		return nil
	},
}

var whoami = cli.Command{
	Name:  "user",
	Usage: "show the identity owning the credentials",
	Action: func(c *cli.Context) error {
		user := client.CurrentUser()
		fmt.Printf("id=%d username=%s algo=%v admin=%v\n",
			user.ID, user.Username, user.Algo, user.AdminByNow)
		return nil
	},
}

var upload = cli.Command{
	Name:      "upload",
	Usage:     "upload an image file",
	ArgsUsage: "FILE",
	Flags: []cli.Flag{
		cli.Int64Flag{
			Name:  "storage",
			Usage: "identifier of the destination storage",
		},
		cli.Int64Flag{
			Name:  "project",
			Usage: "project to deploy the image into",
		},
		cli.BoolFlag{
			Name:  "sync",
			Usage: "wait for the server to deploy the image",
		},
		cli.StringSliceFlag{
			Name:  "property",
			Usage: "KEY=VALUE pair to attach to the deployed image (repeatable)",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("expected exactly one file argument", 2)
		}
		storage := &cytomine.Storage{}
		storage.SetID(c.Int64("storage"))
		var project *cytomine.Project
		if id := c.Int64("project"); id != 0 {
			project = &cytomine.Project{}
			project.SetID(id)
		}
		properties := map[string]string{}
		for _, pair := range c.StringSlice("property") {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return cli.NewExitError("property must be KEY=VALUE", 2)
			}
			properties[key] = value
		}
		uploaded, err := client.UploadImage(c.Args().First(), storage, project, properties, c.Bool("sync"))
		if err != nil {
			return err
		}
		fmt.Printf("uploadedFile=%d status=%d images=%d\n",
			uploaded.ID, uploaded.Status, len(uploaded.Images))
		return nil
	},
}

var dump = cli.Command{
	Name:      "dump",
	Usage:     "download annotation crops",
	ArgsUsage: "ANNOTATION_ID...",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "pattern",
			Value: "{id}.jpg",
			Usage: "destination path template",
		},
		cli.BoolFlag{
			Name:  "mask",
			Usage: "download the binary mask instead of the crop",
		},
		cli.BoolFlag{
			Name:  "alpha",
			Usage: "download the crop with transparent background",
		},
		cli.IntFlag{
			Name:  "max-size",
			Usage: "bound the longest side, in pixels",
		},
		cli.BoolFlag{
			Name:  "keep-existing",
			Usage: "do not overwrite files already on disk",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return cli.NewExitError("expected at least one annotation id", 2)
		}
		opts := cytomine.CropOptions{
			Mask:    c.Bool("mask") || c.Bool("alpha"),
			Alpha:   c.Bool("alpha"),
			MaxSize: c.Int("max-size"),
		}
		for _, arg := range c.Args() {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("bad annotation id %q: %w", arg, err)
			}
			annotation := &cytomine.Annotation{}
			annotation.SetID(id)
			if err := client.Fetch(annotation); err != nil {
				return err
			}
			paths, err := client.DumpAnnotation(annotation, c.String("pattern"), !c.Bool("keep-existing"), opts)
			if err != nil {
				return err
			}
			for _, path := range paths {
				fmt.Println(path)
			}
		}
		return nil
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "cytomine"
	app.Usage = "command-line client for a Cytomine server"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Usage: "server host, with optional http:// or https:// scheme",
		},
		cli.StringFlag{
			Name:  "public-key",
			Usage: "API public key",
		},
		cli.StringFlag{
			Name:  "private-key",
			Usage: "API private key",
		},
		cli.StringFlag{
			Name:  "upload-host",
			Usage: "dedicated upload server, defaults to the API host",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "one of debug, info, warning, error",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "YAML configuration file",
		},
		cli.BoolFlag{
			Name:  "cache",
			Usage: "cache idempotent GET responses in memory",
		},
	}
	app.Before = connect
	app.Commands = []cli.Command{ping, whoami, upload, dump}
	if err := app.Run(os.Args); err != nil {
		logrus.WithField("err", err).Fatal("Command failed")
	}
}
