package model

import (
	"encoding/gob"
	"io"
	"io/fs"
	"os"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// SaveModel はオブジェクトを gob 形式でファイルに保存する
//
// ハイパーパラメータと学習済み回帰器の永続化に使用する。
//
//	err := model.SaveModel(hyper, "default_hyper.gob")
func SaveModel(model interface{}, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close %s", filename)
		}
	}()

	return SaveModelToWriter(model, file)
}

// LoadModel はファイルからオブジェクトを読み込む
//
// ファイルが存在しない場合は errors.ErrFileNotFound をラップして返す。
//
//	var hyper neural.Hyperparameters
//	err := model.LoadModel(&hyper, "default_hyper.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(errors.ErrFileNotFound, "%s", filename)
		}
		return errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter はオブジェクトを io.Writer に gob で書き出す
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader は io.Reader から gob でオブジェクトを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
