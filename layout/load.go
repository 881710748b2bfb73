package layout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidLayout = errors.New("invalid layout")
	ErrEmptyLayout   = errors.New("empty layout")
)

// 从YAML文件读取布局
func LoadFile(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Layout, error) {
	l := &Layout{}
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// 写入YAML文件
func (l *Layout) Save(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal layout: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// mongo中的布局文档：{class: "meta"|"floor"|"connection", data: {...}}
type mongoDoc struct {
	Class string   `bson:"class"`
	Data  bson.Raw `bson:"data"`
}

// 从mongo集合读取布局
func LoadMongo(ctx context.Context, coll *mongo.Collection) (*Layout, error) {
	cur, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find layout in %s: %w", coll.Name(), err)
	}
	defer cur.Close(ctx)
	l := &Layout{}
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode layout document: %w", err)
		}
		switch doc.Class {
		case "meta":
			var meta struct {
				Name string `bson:"name"`
			}
			if err := bson.Unmarshal(doc.Data, &meta); err != nil {
				return nil, fmt.Errorf("decode layout meta: %w", err)
			}
			l.Name = meta.Name
		case "floor":
			var f Floor
			if err := bson.Unmarshal(doc.Data, &f); err != nil {
				return nil, fmt.Errorf("decode floor: %w", err)
			}
			l.Floors = append(l.Floors, f)
		case "connection":
			var c Connection
			if err := bson.Unmarshal(doc.Data, &c); err != nil {
				return nil, fmt.Errorf("decode connection: %w", err)
			}
			l.Connections = append(l.Connections, c)
		default:
			log.Warnf("skip layout document with unknown class %q", doc.Class)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(l.Floors) == 0 {
		return nil, fmt.Errorf("%w: collection %s", ErrEmptyLayout, coll.Name())
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// 优先读取缓存目录中的文件，否则调用download下载并写入缓存
// cacheDir为空表示不使用缓存
func LoadWithCache(cacheDir, name string, download func() (*Layout, error)) (*Layout, error) {
	if cacheDir == "" {
		return download()
	}
	path := filepath.Join(cacheDir, name+".yaml")
	if _, err := os.Stat(path); err == nil {
		log.Infof("load layout from cache %s", path)
		return LoadFile(path)
	}
	l, err := download()
	if err != nil {
		return nil, err
	}
	if err := l.Save(path); err != nil {
		// 缓存失败不影响使用
		log.Warnf("failed to write layout cache %s: %v", path, err)
	}
	return l, nil
}
