package frames

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
)

// decodePGM reads binary (P5) portable graymaps. 16-bit samples are scaled
// down to 8 bits.
func decodePGM(r *bufio.Reader) (image.Image, error) {
	magic, err := pgmToken(r)
	if err != nil {
		return nil, err
	}
	if magic != "P5" {
		return nil, fmt.Errorf("pgm: unsupported magic %q", magic)
	}
	var dims [3]int
	for i := range dims {
		tok, err := pgmToken(r)
		if err != nil {
			return nil, err
		}
		if dims[i], err = strconv.Atoi(tok); err != nil || dims[i] <= 0 {
			return nil, fmt.Errorf("pgm: bad header value %q", tok)
		}
	}
	width, height, maxVal := dims[0], dims[1], dims[2]
	if maxVal > 65535 {
		return nil, fmt.Errorf("pgm: maxval %d out of range", maxVal)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	if maxVal < 256 {
		if _, err := io.ReadFull(r, img.Pix); err != nil {
			return nil, fmt.Errorf("pgm: read pixels: %w", err)
		}
		if maxVal != 255 {
			for i, v := range img.Pix {
				img.Pix[i] = byte(int(v) * 255 / maxVal)
			}
		}
		return img, nil
	}

	raw := make([]byte, width*height*2)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("pgm: read pixels: %w", err)
	}
	for i := range img.Pix {
		v := int(raw[2*i])<<8 | int(raw[2*i+1])
		img.Pix[i] = byte(v * 255 / maxVal)
	}
	return img, nil
}

// pgmToken returns the next whitespace-delimited header token, skipping
// comments. It consumes exactly one whitespace byte after the token.
func pgmToken(r *bufio.Reader) (string, error) {
	var tok []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(tok) > 0 {
				return string(tok), nil
			}
			return "", fmt.Errorf("pgm: header: %w", err)
		}
		switch {
		case b == '#' && len(tok) == 0:
			if _, err := r.ReadString('\n'); err != nil {
				return "", fmt.Errorf("pgm: header comment: %w", err)
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, b)
		}
	}
}
