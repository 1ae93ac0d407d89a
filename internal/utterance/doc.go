// Package utterance produces the PCM buffers the speaker plays, one flat
// buffer per synthesized phrase.
//
// FileSource reads headerless PCM files (or standard input for "-") that
// are already in the playback format. ToneSource synthesizes sine-wave
// utterances and stands in for the speech engine during bring-up.
package utterance
