package assemble

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	goruntime "runtime"
	"time"

	"github.com/opencontainers/go-digest"
	imagespec "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/emberworks/kilnd/internal/tarball"
)

// Annotation recording the base image the runtime layer was staged against.
const baseImageAnnotation = "org.opencontainers.image.base.name"

// Writes the staged root as a single-layer OCI image archive.
//
// The archive is a tar of an OCI image layout: oci-layout, index.json, and
// the blobs for the layer, config, and manifest. The layer is the staging
// root, uncompressed, so its digest doubles as the rootfs diff ID. The
// image config carries the exposed ports and the entrypoint; the manifest
// records the base image reference as an annotation.
func writeArchive(staging string, in Inputs, path string) (digest.Digest, error) {
	layer, err := writeLayerBlob(staging)
	if err != nil {
		return "", err
	}
	defer os.Remove(layer.path)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	defer tw.Close()

	if err := writeLayoutMarker(tw); err != nil {
		return "", err
	}

	layerDesc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageLayer,
		Digest:    layer.digest,
		Size:      layer.size,
	}
	if err := writeBlobFromFile(tw, layerDesc, layer.path); err != nil {
		return "", err
	}

	configDesc, err := writeJSONBlob(tw, ocispec.MediaTypeImageConfig, imageConfig(in, layer.digest))
	if err != nil {
		return "", err
	}

	manifestDesc, err := writeJSONBlob(tw, ocispec.MediaTypeImageManifest, ocispec.Manifest{
		Versioned: imagespec.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    configDesc,
		Layers:    []ocispec.Descriptor{layerDesc},
		Annotations: map[string]string{
			baseImageAnnotation: in.Image.Base,
		},
	})
	if err != nil {
		return "", err
	}

	manifestDesc.Platform = &ocispec.Platform{
		OS:           "linux",
		Architecture: goruntime.GOARCH,
	}
	manifestDesc.Annotations = map[string]string{
		ocispec.AnnotationRefName: in.Project + ":latest",
	}

	index := ocispec.Index{
		Versioned: imagespec.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: []ocispec.Descriptor{manifestDesc},
	}
	data, err := json.Marshal(index)
	if err != nil {
		return "", err
	}
	if err := writeFileEntry(tw, ocispec.ImageIndexFile, data); err != nil {
		return "", err
	}

	return manifestDesc.Digest, nil
}

// Builds the OCI image config for the staged layer.
func imageConfig(in Inputs, diffID digest.Digest) ocispec.Image {
	exposed := make(map[string]struct{}, len(in.Image.Ports))
	for _, port := range in.Image.Ports {
		exposed[port.String()] = struct{}{}
	}

	now := time.Now().UTC()

	return ocispec.Image{
		Created: &now,
		Platform: ocispec.Platform{
			OS:           "linux",
			Architecture: goruntime.GOARCH,
		},
		Config: ocispec.ImageConfig{
			Entrypoint:   append([]string{in.Image.Entrypoint}, in.Image.Args...),
			ExposedPorts: exposed,
		},
		RootFS: ocispec.RootFS{
			Type:    "layers",
			DiffIDs: []digest.Digest{diffID},
		},
	}
}

// A spooled layer blob: the staged root archived to a temporary file with
// its digest computed while writing.
type layerBlob struct {
	path   string
	digest digest.Digest
	size   int64
}

// Archives the staging root into a temporary tar file, digesting the
// stream as it is written.
func writeLayerBlob(staging string) (*layerBlob, error) {
	f, err := os.CreateTemp("", "kiln-layer-")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	digester := digest.Canonical.Digester()
	tw := tar.NewWriter(io.MultiWriter(f, digester.Hash()))

	if err := tarball.WriteDir(tw, staging, ""); err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	if err := tw.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	return &layerBlob{
		path:   f.Name(),
		digest: digester.Digest(),
		size:   info.Size(),
	}, nil
}

// Writes the oci-layout version marker.
func writeLayoutMarker(tw *tar.Writer) error {
	data, err := json.Marshal(ocispec.ImageLayout{Version: ocispec.ImageLayoutVersion})
	if err != nil {
		return err
	}
	return writeFileEntry(tw, ocispec.ImageLayoutFile, data)
}

// Serializes a value and writes it under blobs/, returning the descriptor
// that references the stored blob.
func writeJSONBlob(tw *tar.Writer, mediaType string, v any) (ocispec.Descriptor, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(data),
		Size:      int64(len(data)),
	}

	if err := writeFileEntry(tw, blobPath(desc.Digest), data); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Streams a blob from a file into the archive under blobs/.
func writeBlobFromFile(tw *tar.Writer, desc ocispec.Descriptor, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := &tar.Header{
		Name: blobPath(desc.Digest),
		Mode: 0644,
		Size: desc.Size,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Writes a small in-memory file entry to the archive.
func writeFileEntry(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// Returns the layout path of a blob.
func blobPath(d digest.Digest) string {
	return "blobs/" + string(d.Algorithm()) + "/" + d.Encoded()
}
