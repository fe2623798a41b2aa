package memory

import (
	"path"
	"strconv"

	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/chunking"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/extractor/plaintext"
)

// LoadCorpusDir reads the text files under dir and splits them into passages.
func LoadCorpusDir(dir string, splitter *chunking.Splitter) ([]Record, error) {
	docs, err := plaintext.ReadDir(dir, nil)
	if err != nil {
		return nil, err
	}
	return ChunkDocuments(docs, splitter), nil
}

// ChunkDocuments turns documents into records with node ids "<path>#<chunk>".
// Ids are stable as long as the files and the splitter settings are.
func ChunkDocuments(docs []plaintext.Document, splitter *chunking.Splitter) []Record {
	var out []Record
	for _, doc := range docs {
		for i, chunk := range splitter.Split(doc.Text) {
			out = append(out, Record{
				NodeID: doc.Path + "#" + strconv.Itoa(i),
				Text:   chunk,
				Metadata: map[string]string{
					"file_name":   path.Base(doc.Path),
					"file_path":   doc.Path,
					"chunk_index": strconv.Itoa(i),
				},
			})
		}
	}
	return out
}
