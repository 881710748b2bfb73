package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.fiblab.net/sim/evacuation/layout"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// 布局来源：本地文件或mongo集合
type Path struct {
	File string
	DB   string
	Coll string
}

func NewPath(filePathOrColl string) (*Path, error) {
	// 检查filePathOrColl是否作为文件存在
	if _, err := os.Stat(filePathOrColl); err == nil {
		return &Path{
			File: filePathOrColl,
		}, nil
	}
	dbDotColl := strings.TrimSpace(filePathOrColl)
	if dbDotColl == "" {
		return nil, fmt.Errorf("empty layout path")
	}
	splitted := strings.Split(dbDotColl, ".")
	if len(splitted) != 2 || splitted[0] == "" || splitted[1] == "" {
		return nil, fmt.Errorf("dbDotColl is invalid: %s", dbDotColl)
	}
	return &Path{
		DB:   splitted[0],
		Coll: splitted[1],
	}, nil
}

func (p *Path) String() string {
	if p.File != "" {
		return p.File
	}
	return p.DB + "." + p.Coll
}

// 缓存文件名
func (p *Path) CacheName() string {
	if p.File != "" {
		// return absolute path
		path, err := filepath.Abs(p.File)
		if err != nil {
			return p.File
		}
		return path
	}
	return p.DB + "." + p.Coll
}

// 读取布局；mongo集合优先从缓存目录读取，只在需要下载时连接数据库
func LoadLayout(ctx context.Context, p *Path, mongoURI, cacheDir string) (*layout.Layout, error) {
	if p.File != "" {
		return layout.LoadFile(p.File)
	}
	var client *mongo.Client
	defer func() {
		if client != nil {
			client.Disconnect(context.Background())
		}
	}()
	return layout.LoadWithCache(cacheDir, p.CacheName(), func() (*layout.Layout, error) {
		if mongoURI == "" {
			return nil, fmt.Errorf("mongo_uri is required to download layout %s", p)
		}
		var err error
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		return layout.LoadMongo(ctx, client.Database(p.DB).Collection(p.Coll))
	})
}
